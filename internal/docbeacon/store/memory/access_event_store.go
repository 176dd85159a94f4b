package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

// AccessEventStore is an in-memory append-only log of document opens.
// It is intended for tests and storage.driver=memory.
type AccessEventStore struct {
	mu     sync.Mutex
	nextID int64
	events []types.AccessEvent
}

var _ store.AccessEventStore = (*AccessEventStore)(nil)

func NewAccessEventStore() *AccessEventStore {
	return &AccessEventStore{}
}

func (s *AccessEventStore) Insert(ctx context.Context, ev types.AccessEvent) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if ev.OpenedAt.IsZero() {
		ev.OpenedAt = time.Now().UTC()
	}
	ev = store.Normalize(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	s.events = append(s.events, ev)
	return ev.ID, nil
}

func (s *AccessEventStore) UpdateChannelStatus(ctx context.Context, id int64, upd store.ChannelUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID != id {
			continue
		}
		ev := &s.events[i]
		if upd.Email != nil && !ev.EmailStatus.IsTerminal() {
			ev.EmailStatus = *upd.Email
		}
		if upd.Chat != nil && !ev.ChatStatus.IsTerminal() {
			ev.ChatStatus = *upd.Chat
		}
		return nil
	}
	return store.ErrEventNotFound
}

func (s *AccessEventStore) ListByDocument(ctx context.Context, documentID string) ([]types.AccessEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := []types.AccessEvent{}
	for _, ev := range s.events {
		if ev.DocumentID == documentID {
			out = append(out, ev)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.After(out[j].OpenedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *AccessEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var pruned int64
	for _, ev := range s.events {
		if ev.OpenedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return pruned, nil
}

// Events returns a copy of all stored events in insertion order. Test-only
// helper.
func (s *AccessEventStore) Events() []types.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AccessEvent, len(s.events))
	copy(out, s.events)
	return out
}
