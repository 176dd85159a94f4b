package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/docbeacon/internal/db"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

// AccessEventStore writes through the single db.Worker and reads directly
// from the shared *sql.DB.
type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

var _ store.AccessEventStore = (*AccessEventStore)(nil)

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) Insert(ctx context.Context, ev types.AccessEvent) (int64, error) {
	if ev.OpenedAt.IsZero() {
		ev.OpenedAt = time.Now().UTC()
	}
	ev = store.Normalize(ev)

	var lat, lon any
	if ev.Location.HasCoordinates() {
		lat, lon = *ev.Location.Latitude, *ev.Location.Longitude
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  document_id, recipient_label, opened_at_ms, source_ip, user_agent,
  country, region, city, latitude, longitude, accuracy_m,
  location_source, geo_provider,
  email_status, chat_status, lifecycle_status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			ev.DocumentID, ev.RecipientLabel, ev.OpenedAt.UnixMilli(), ev.SourceIP, ev.UserAgent,
			ev.Location.Country, ev.Location.Region, ev.Location.City, lat, lon, ev.Location.AccuracyMeters,
			string(ev.Location.Source), ev.Location.Provider,
			ev.EmailStatus.String(), ev.ChatStatus.String(), ev.LifecycleStatus,
		)
		if err != nil {
			return fmt.Errorf("Insert access_event: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("Insert last id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *AccessEventStore) UpdateChannelStatus(ctx context.Context, id int64, upd store.ChannelUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM access_events WHERE id = ?;`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return store.ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("UpdateChannelStatus lookup: %w", err)
		}

		pending := types.Pending().String()
		if upd.Email != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE access_events SET email_status = ? WHERE id = ? AND email_status = ?;`,
				upd.Email.String(), id, pending,
			); err != nil {
				return fmt.Errorf("UpdateChannelStatus email: %w", err)
			}
		}
		if upd.Chat != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE access_events SET chat_status = ? WHERE id = ? AND chat_status = ?;`,
				upd.Chat.String(), id, pending,
			); err != nil {
				return fmt.Errorf("UpdateChannelStatus chat: %w", err)
			}
		}
		return nil
	})
}

func (s *AccessEventStore) ListByDocument(ctx context.Context, documentID string) ([]types.AccessEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, recipient_label, opened_at_ms, source_ip, user_agent,
       country, region, city, latitude, longitude, accuracy_m,
       location_source, geo_provider,
       email_status, chat_status, lifecycle_status
FROM access_events
WHERE document_id = ?
ORDER BY opened_at_ms DESC, id DESC;
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("ListByDocument query: %w", err)
	}
	defer rows.Close()

	out := []types.AccessEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByDocument rows: %w", err)
	}
	return out, nil
}

func (s *AccessEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM access_events WHERE opened_at_ms < ?;`,
			cutoff.UTC().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanEvent(rows *sql.Rows) (types.AccessEvent, error) {
	var (
		ev                    types.AccessEvent
		openedMs              int64
		lat, lon              sql.NullFloat64
		source                string
		emailStatus, chatStat string
	)
	if err := rows.Scan(
		&ev.ID, &ev.DocumentID, &ev.RecipientLabel, &openedMs, &ev.SourceIP, &ev.UserAgent,
		&ev.Location.Country, &ev.Location.Region, &ev.Location.City, &lat, &lon, &ev.Location.AccuracyMeters,
		&source, &ev.Location.Provider,
		&emailStatus, &chatStat, &ev.LifecycleStatus,
	); err != nil {
		return types.AccessEvent{}, fmt.Errorf("ListByDocument scan: %w", err)
	}

	ev.OpenedAt = time.UnixMilli(openedMs).UTC()
	ev.Location.Source = types.LocationSource(source)
	if lat.Valid && lon.Valid {
		la, lo := lat.Float64, lon.Float64
		ev.Location.Latitude, ev.Location.Longitude = &la, &lo
	}
	ev.EmailStatus = types.ParseChannelStatus(emailStatus)
	ev.ChatStatus = types.ParseChannelStatus(chatStat)
	return ev, nil
}
