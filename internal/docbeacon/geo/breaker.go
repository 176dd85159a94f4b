package geo

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/BrandonDHaskell/docbeacon/internal/metrics"
)

// ErrBreakerOpen is returned when a provider's breaker rejects the call.
var ErrBreakerOpen = errors.New("geo: circuit breaker open")

type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker. Default 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Default 1m.
	OpenTimeout time.Duration
}

// breakerProvider wraps a Provider with a gobreaker circuit breaker.
// ErrNoData answers do not count as failures: the provider is healthy, it
// just has nothing for that address.
type breakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[Result]
}

func WithBreaker(p Provider, s BreakerSettings, logger zerolog.Logger) Provider {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = time.Minute
	}

	name := p.Name()
	metrics.GeoBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("geo provider breaker state change")
			metrics.GeoBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &breakerProvider{next: p, cb: cb}
}

func (b *breakerProvider) Name() string { return b.next.Name() }

func (b *breakerProvider) Lookup(ctx context.Context, ip netip.Addr) (Result, error) {
	res, err := b.cb.Execute(func() (Result, error) {
		return b.next.Lookup(ctx, ip)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{}, ErrBreakerOpen
	}
	return res, err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
