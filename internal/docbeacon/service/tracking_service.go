package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/geo"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/notify"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/metrics"
)

var (
	ErrInvalidDocumentID = errors.New("document_id may only contain letters, digits, '.', '_' and '-' (1-128 chars)")
	ErrContentRequired   = errors.New("content is required")
	ErrInvalidRequest    = errors.New("invalid document request")
	ErrUnknownChannel    = errors.New("unknown notification channel")
)

// statusWriteTimeout bounds the final status update, which runs even when
// the job context has expired.
const statusWriteTimeout = 5 * time.Second

type LocationResolver interface {
	Resolve(ctx context.Context, q geo.Query) types.Location
}

type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Outcome
	SendEmail(ctx context.Context, n notify.Notification) types.ChannelStatus
	SendChat(ctx context.Context, n notify.Notification) types.ChannelStatus
}

// TrackRequest is what the tracking endpoint captured from one open.
type TrackRequest struct {
	DocumentID     string
	RecipientLabel string
	SourceIP       string
	UserAgent      string
	GPS            *geo.GPSReading
}

type TrackingDeps struct {
	Resolver LocationResolver
	Store    store.AccessEventStore
	Notifier Notifier
	Executor Executor
	Logger   zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}

// TrackingService runs the open → locate → persist → notify pipeline.
type TrackingService struct {
	resolver LocationResolver
	store    store.AccessEventStore
	notifier Notifier
	exec     Executor
	logger   zerolog.Logger
	now      func() time.Time
}

func NewTrackingService(d TrackingDeps) *TrackingService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Executor == nil {
		d.Executor = InlineExecutor{}
	}
	return &TrackingService{
		resolver: d.Resolver,
		store:    d.Store,
		notifier: d.Notifier,
		exec:     d.Executor,
		logger:   d.Logger.With().Str("component", "tracking").Logger(),
		now:      d.Now,
	}
}

// Capture stamps the open time and hands the rest of the pipeline to the
// executor. It never blocks beyond the executor's enqueue wait and reports
// only whether the job was accepted.
func (s *TrackingService) Capture(req TrackRequest) bool {
	openedAt := s.now().UTC()
	req = normalizeRequest(req)

	mode := "pixel"
	if req.GPS != nil {
		mode = "gps"
	}
	metrics.TrackingRequests.WithLabelValues(mode).Inc()

	return s.exec.Submit(func(ctx context.Context) {
		_, _ = s.Process(ctx, req, openedAt)
	})
}

// Process runs the pipeline for one open. Insert happens before either
// notification attempt, and both attempts finish before the status update.
func (s *TrackingService) Process(ctx context.Context, req TrackRequest, openedAt time.Time) (int64, error) {
	start := time.Now()
	defer func() { metrics.PipelineDuration.Observe(time.Since(start).Seconds()) }()

	req = normalizeRequest(req)
	log := s.logger.With().
		Str("document_id", req.DocumentID).
		Str("recipient", req.RecipientLabel).
		Str("ip", req.SourceIP).
		Logger()

	loc := s.resolver.Resolve(ctx, geo.Query{IP: req.SourceIP, GPS: req.GPS})

	ev := store.Normalize(types.AccessEvent{
		DocumentID:     req.DocumentID,
		RecipientLabel: req.RecipientLabel,
		OpenedAt:       openedAt,
		SourceIP:       req.SourceIP,
		UserAgent:      req.UserAgent,
		Location:       loc,
	})

	id, err := s.store.Insert(ctx, ev)
	metrics.RecordAccessEvent(err)
	if err != nil {
		log.Error().Err(err).Msg("persist access event; notifications skipped")
		return 0, fmt.Errorf("insert access event: %w", err)
	}
	ev.ID = id

	log.Info().
		Int64("event_id", id).
		Str("source", string(loc.Source)).
		Str("city", loc.City).
		Str("country", loc.Country).
		Float64("accuracy_m", loc.AccuracyMeters).
		Msg("document opened")

	out := s.notifier.Dispatch(ctx, notify.Notification{Event: ev})

	updCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := s.store.UpdateChannelStatus(updCtx, id, store.ChannelUpdate{Email: &out.Email, Chat: &out.Chat}); err != nil {
		log.Error().Err(err).Int64("event_id", id).Msg("record notification outcome")
		return id, fmt.Errorf("update channel status: %w", err)
	}

	log.Debug().
		Int64("event_id", id).
		Str("email_status", out.Email.String()).
		Str("chat_status", out.Chat.String()).
		Msg("notifications finished")
	return id, nil
}

// Analytics lists every open of documentID, most recent first.
func (s *TrackingService) Analytics(ctx context.Context, documentID string) (types.AnalyticsResponse, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return types.AnalyticsResponse{}, ErrInvalidDocumentID
	}

	events, err := s.store.ListByDocument(ctx, documentID)
	if err != nil {
		return types.AnalyticsResponse{}, fmt.Errorf("list access events: %w", err)
	}

	views := make([]types.AccessView, 0, len(events))
	for _, ev := range events {
		views = append(views, types.AccessView{
			ID:              ev.ID,
			DocumentID:      ev.DocumentID,
			RecipientLabel:  ev.RecipientLabel,
			OpenedAt:        ev.OpenedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			SourceIP:        ev.SourceIP,
			UserAgent:       ev.UserAgent,
			Location:        ev.Location,
			EmailStatus:     ev.EmailStatus,
			ChatStatus:      ev.ChatStatus,
			LifecycleStatus: ev.LifecycleStatus,
			MapLinks:        types.MapLinksFor(ev.Location),
		})
	}

	return types.AnalyticsResponse{
		DocumentID: documentID,
		TotalOpens: len(views),
		Accesses:   views,
	}, nil
}

// TestChannel sends a sample notification through one channel and returns
// its status. Nothing is persisted.
func (s *TrackingService) TestChannel(ctx context.Context, channel string) (types.ChannelStatus, error) {
	n := notify.Notification{Event: sampleEvent(s.now().UTC())}

	switch strings.ToLower(strings.TrimSpace(channel)) {
	case notify.ChannelEmail:
		return s.notifier.SendEmail(ctx, n), nil
	case notify.ChannelChat, "whatsapp":
		return s.notifier.SendChat(ctx, n), nil
	default:
		return types.ChannelStatus{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
}

func sampleEvent(now time.Time) types.AccessEvent {
	lat, lon := 40.712776, -74.005974
	return types.AccessEvent{
		DocumentID:     "TEST_DOCUMENT",
		RecipientLabel: "Test Recipient",
		OpenedAt:       now,
		SourceIP:       "203.0.113.10",
		UserAgent:      "docbeacon channel test",
		Location: types.Location{
			Country:        "United States",
			Region:         "New York",
			City:           "New York",
			Latitude:       &lat,
			Longitude:      &lon,
			AccuracyMeters: 25.5,
			Source:         types.SourceGPS,
		},
		EmailStatus:     types.Pending(),
		ChatStatus:      types.Pending(),
		LifecycleStatus: types.LifecycleOpened,
	}
}

func normalizeRequest(req TrackRequest) TrackRequest {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.RecipientLabel = strings.TrimSpace(req.RecipientLabel)
	req.SourceIP = strings.TrimSpace(req.SourceIP)
	req.UserAgent = strings.TrimSpace(req.UserAgent)
	if req.SourceIP == "" {
		req.SourceIP = "unknown"
	}
	if req.UserAgent == "" {
		req.UserAgent = types.Unknown
	}
	return req
}
