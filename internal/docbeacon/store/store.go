package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

var (
	// ErrEventNotFound is returned when an update names an id that was never
	// inserted (or has been pruned).
	ErrEventNotFound = errors.New("store: access event not found")
	// ErrInvalidStatus is returned when an update tries to write pending.
	ErrInvalidStatus = errors.New("store: channel status must be terminal")
)

// ChannelUpdate carries the terminal outcome of zero, one or both channels.
// Nil fields are left untouched.
type ChannelUpdate struct {
	Email *types.ChannelStatus
	Chat  *types.ChannelStatus
}

func (u ChannelUpdate) Validate() error {
	if u.Email != nil && !u.Email.IsTerminal() {
		return ErrInvalidStatus
	}
	if u.Chat != nil && !u.Chat.IsTerminal() {
		return ErrInvalidStatus
	}
	return nil
}

// AccessEventStore is the append-only log of document opens.
//
// Insert ignores the caller's ID, channel statuses and lifecycle: new rows
// always start pending/pending/opened. UpdateChannelStatus only changes a
// column still holding pending, so repeating an update is a no-op.
type AccessEventStore interface {
	Insert(ctx context.Context, ev types.AccessEvent) (int64, error)
	UpdateChannelStatus(ctx context.Context, id int64, upd ChannelUpdate) error
	ListByDocument(ctx context.Context, documentID string) ([]types.AccessEvent, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Normalize applies the insert-time defaults shared by every implementation.
func Normalize(ev types.AccessEvent) types.AccessEvent {
	ev.ID = 0
	ev.OpenedAt = ev.OpenedAt.UTC().Truncate(time.Millisecond)
	if ev.SourceIP == "" {
		ev.SourceIP = "unknown"
	}
	if ev.UserAgent == "" {
		ev.UserAgent = types.Unknown
	}
	ev.Location = ev.Location.Normalized()
	ev.EmailStatus = types.Pending()
	ev.ChatStatus = types.Pending()
	ev.LifecycleStatus = types.LifecycleOpened
	return ev
}
