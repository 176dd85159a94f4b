package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store/memory"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

func TestAccessEventStore_InsertListUpdate(t *testing.T) {
	s := memory.NewAccessEventStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	older, _ := s.Insert(ctx, types.AccessEvent{DocumentID: "DOC1", OpenedAt: base})
	newer, _ := s.Insert(ctx, types.AccessEvent{DocumentID: "DOC1", OpenedAt: base.Add(time.Second), EmailStatus: types.Sent()})
	s.Insert(ctx, types.AccessEvent{DocumentID: "DOC2", OpenedAt: base})

	got, err := s.ListByDocument(ctx, "DOC1")
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer || got[1].ID != older {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].EmailStatus != types.Pending() {
		t.Errorf("insert must force pending, got %s", got[0].EmailStatus)
	}

	sent, failed := types.Sent(), types.Failed("boom")
	if err := s.UpdateChannelStatus(ctx, newer, store.ChannelUpdate{Email: &sent}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateChannelStatus(ctx, newer, store.ChannelUpdate{Email: &failed}); err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	got, _ = s.ListByDocument(ctx, "DOC1")
	if got[0].EmailStatus != types.Sent() {
		t.Errorf("email status overwritten: %s", got[0].EmailStatus)
	}
}

func TestAccessEventStore_UpdateErrors(t *testing.T) {
	s := memory.NewAccessEventStore()
	ctx := context.Background()
	sent, pending := types.Sent(), types.Pending()

	if err := s.UpdateChannelStatus(ctx, 42, store.ChannelUpdate{Chat: &sent}); !errors.Is(err, store.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}

	id, _ := s.Insert(ctx, types.AccessEvent{DocumentID: "DOC1"})
	if err := s.UpdateChannelStatus(ctx, id, store.ChannelUpdate{Chat: &pending}); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestAccessEventStore_PruneOlderThan(t *testing.T) {
	s := memory.NewAccessEventStore()
	ctx := context.Background()
	now := time.Now().UTC()

	s.Insert(ctx, types.AccessEvent{DocumentID: "DOC1", OpenedAt: now.Add(-72 * time.Hour)})
	s.Insert(ctx, types.AccessEvent{DocumentID: "DOC1", OpenedAt: now})

	n, err := s.PruneOlderThan(ctx, now.Add(-time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneOlderThan = %d, %v", n, err)
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected 1 remaining event, got %d", len(s.Events()))
	}
}
