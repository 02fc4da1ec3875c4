package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/couchskill/internal/observe"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// Compile-time interface checks.
var (
	_ media.Provider = (*GuardedProvider)(nil)
	_ media.Pinger   = (*GuardedProvider)(nil)
)

// GuardedProvider decorates a [media.Provider] so every call runs through a
// [CircuitBreaker] and is recorded in the provider metrics.
//
// Ping bypasses the breaker: readiness checks must see the backend's real
// state, and a successful ping does not close an open breaker.
type GuardedProvider struct {
	name    string
	inner   media.Provider
	cb      *CircuitBreaker
	metrics *observe.Metrics
}

// NewGuardedProvider wraps inner. name labels metrics and logs (e.g.,
// "couchpotato"). A nil metrics disables recording.
func NewGuardedProvider(name string, inner media.Provider, cb *CircuitBreaker, metrics *observe.Metrics) *GuardedProvider {
	return &GuardedProvider{name: name, inner: inner, cb: cb, metrics: metrics}
}

// Name returns the provider label.
func (g *GuardedProvider) Name() string { return g.name }

// Breaker returns the breaker guarding the provider.
func (g *GuardedProvider) Breaker() *CircuitBreaker { return g.cb }

// Unwrap returns the decorated provider.
func (g *GuardedProvider) Unwrap() media.Provider { return g.inner }

// Search implements [media.Provider].
func (g *GuardedProvider) Search(ctx context.Context, query string) ([]media.Media, error) {
	var out []media.Media
	err := g.run(ctx, "search", func(ctx context.Context) error {
		var err error
		out, err = g.inner.Search(ctx, query)
		return err
	})
	return out, err
}

// Find implements [media.Provider].
func (g *GuardedProvider) Find(ctx context.Context, query string) ([]media.Media, error) {
	var out []media.Media
	err := g.run(ctx, "find", func(ctx context.Context) error {
		var err error
		out, err = g.inner.Find(ctx, query)
		return err
	})
	return out, err
}

// Add implements [media.Provider].
func (g *GuardedProvider) Add(ctx context.Context, items []media.Media) error {
	return g.run(ctx, "add", func(ctx context.Context) error {
		return g.inner.Add(ctx, items)
	})
}

// Ping implements [media.Pinger]. Providers without a Ping are reported
// healthy.
func (g *GuardedProvider) Ping(ctx context.Context) error {
	p, ok := g.inner.(media.Pinger)
	if !ok {
		return nil
	}
	return g.record(ctx, "ping", p.Ping)
}

func (g *GuardedProvider) run(ctx context.Context, op string, fn func(context.Context) error) error {
	return g.record(ctx, op, func(ctx context.Context) error {
		return g.cb.Execute(ctx, fn)
	})
}

func (g *GuardedProvider) record(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if g.metrics != nil {
		g.metrics.RecordProviderRequest(ctx, g.name, op, status(err), time.Since(start))
	}
	return err
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
