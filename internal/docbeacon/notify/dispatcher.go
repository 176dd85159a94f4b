// Package notify sends access-event notifications over email and a chat
// messaging API. Each channel reports a terminal types.ChannelStatus and
// never affects the other.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/metrics"
)

const (
	ChannelEmail = "email"
	ChannelChat  = "chat"
)

// Channel is one delivery path. Send makes exactly one attempt.
type Channel interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

// Outcome holds the terminal status of both channels for one event.
type Outcome struct {
	Email types.ChannelStatus
	Chat  types.ChannelStatus
}

type Dispatcher struct {
	email    Channel
	chat     Channel
	renderer *Renderer
	timeout  time.Duration
	logger   zerolog.Logger
}

type DispatcherOptions struct {
	Email    Channel
	Chat     Channel
	Renderer *Renderer     // nil selects the built-in template
	Timeout  time.Duration // per channel call, default 15s
	Logger   zerolog.Logger
}

func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Email == nil || opts.Chat == nil {
		return nil, fmt.Errorf("notify: both channels are required")
	}
	if opts.Renderer == nil {
		r, err := NewRenderer("")
		if err != nil {
			return nil, err
		}
		opts.Renderer = r
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Dispatcher{
		email:    opts.Email,
		chat:     opts.Chat,
		renderer: opts.Renderer,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With().Str("component", "notify").Logger(),
	}, nil
}

func (d *Dispatcher) EmailConfigured() bool { return d.email.Configured() }
func (d *Dispatcher) ChatConfigured() bool  { return d.chat.Configured() }

func (d *Dispatcher) SendEmail(ctx context.Context, n Notification) types.ChannelStatus {
	return d.send(ctx, d.email, n)
}

func (d *Dispatcher) SendChat(ctx context.Context, n Notification) types.ChannelStatus {
	return d.send(ctx, d.chat, n)
}

// Dispatch runs both channels concurrently and waits for both.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) Outcome {
	var out Outcome
	var g errgroup.Group
	g.Go(func() error {
		out.Email = d.SendEmail(ctx, n)
		return nil
	})
	g.Go(func() error {
		out.Chat = d.SendChat(ctx, n)
		return nil
	})
	_ = g.Wait()
	return out
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, n Notification) (status types.ChannelStatus) {
	start := time.Now()
	log := d.logger.With().
		Str("channel", ch.Name()).
		Str("document_id", n.Event.DocumentID).
		Int64("event_id", n.Event.ID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("notification channel panicked")
			status = types.Failed(fmt.Sprintf("panic: %v", r))
		}
		metrics.RecordNotification(ch.Name(), string(status.Kind), time.Since(start))
	}()

	if !ch.Configured() {
		log.Debug().Msg("channel not configured")
		return types.NotConfigured()
	}

	msg, err := d.renderer.Render(n)
	if err != nil {
		log.Warn().Err(err).Msg("render notification")
		return types.Failed(err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := ch.Send(callCtx, msg); err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("notification failed")
		return types.Failed(err.Error())
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("notification sent")
	return types.Sent()
}
