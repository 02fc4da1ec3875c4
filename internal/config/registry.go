package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/couchskill/internal/health"
	"github.com/MrWong99/couchskill/internal/observe"
	"github.com/MrWong99/couchskill/internal/resilience"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory constructs a media provider from its configuration block.
type Factory func(ProviderEntry) (media.Provider, error)

// Registry maps provider names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates a provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) Create(entry ProviderEntry) (media.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// BuildOption configures [Registry.Build].
type BuildOption func(*buildOptions)

type buildOptions struct {
	metrics *observe.Metrics
	logger  *slog.Logger
}

// WithBuildMetrics records provider calls and breaker transitions in m.
func WithBuildMetrics(m *observe.Metrics) BuildOption {
	return func(o *buildOptions) { o.metrics = m }
}

// WithBuildLogger sets the logger handed to the circuit breakers.
func WithBuildLogger(l *slog.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = l }
}

// Build instantiates the provider configured for every provider type in
// cfg.Providers and guards each one with its own circuit breaker. If any
// provider fails to build, the ones already built are closed.
func (r *Registry) Build(cfg *Config, opts ...BuildOption) (*ProviderSet, error) {
	o := buildOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	set := &ProviderSet{providers: make(map[media.ProviderType]*resilience.GuardedProvider, len(cfg.Providers))}
	for _, t := range sortedTypes(cfg.Providers) {
		entry := cfg.Providers[t]
		p, err := r.Create(entry)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("config: build provider %s: %w", t, err)
		}

		name := entry.Name
		cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         fmt.Sprintf("%s/%s", t, name),
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
			Logger:       o.logger,
			OnStateChange: func(_ string, _, to resilience.State) {
				if o.metrics != nil {
					o.metrics.RecordCircuitTransition(context.Background(), name, to.String())
				}
			},
		})
		set.providers[t] = resilience.NewGuardedProvider(name, p, cb, o.metrics)
	}
	return set, nil
}

// ProviderSet is the set of guarded providers built from one configuration.
// It implements [media.Resolver].
type ProviderSet struct {
	providers map[media.ProviderType]*resilience.GuardedProvider
}

var _ media.Resolver = (*ProviderSet)(nil)

// Resolve implements [media.Resolver].
func (s *ProviderSet) Resolve(t media.ProviderType) (media.Provider, error) {
	p, ok := s.providers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", media.ErrProviderNotConfigured, t)
	}
	return p, nil
}

// Checkers returns one readiness check per provider, named "provider:TYPE".
func (s *ProviderSet) Checkers() []health.Checker {
	out := make([]health.Checker, 0, len(s.providers))
	for _, t := range slices.Sorted(maps.Keys(s.providers)) {
		out = append(out, health.PingChecker("provider:"+string(t), s.providers[t]))
	}
	return out
}

// Close releases providers that hold resources (e.g., database pools).
func (s *ProviderSet) Close() {
	for _, p := range s.providers {
		if c, ok := p.Unwrap().(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// SwappableResolver is a [media.Resolver] whose provider set can be replaced
// at runtime, e.g., after a configuration reload. It is safe for concurrent
// use.
type SwappableResolver struct {
	current atomic.Pointer[ProviderSet]
}

var _ media.Resolver = (*SwappableResolver)(nil)

// NewSwappableResolver returns a resolver serving set.
func NewSwappableResolver(set *ProviderSet) *SwappableResolver {
	r := &SwappableResolver{}
	r.current.Store(set)
	return r
}

// Resolve implements [media.Resolver].
func (r *SwappableResolver) Resolve(t media.ProviderType) (media.Provider, error) {
	return r.current.Load().Resolve(t)
}

// Checkers returns the readiness checks of the current provider set.
func (r *SwappableResolver) Checkers() []health.Checker {
	return r.current.Load().Checkers()
}

// Current returns the provider set being served.
func (r *SwappableResolver) Current() *ProviderSet {
	return r.current.Load()
}

// Swap installs set and returns the previous one. Requests already holding a
// provider from the previous set keep using it, so the caller decides when
// to close it. [SwappableResolver.Replace] closes it after a grace period.
func (r *SwappableResolver) Swap(set *ProviderSet) *ProviderSet {
	return r.current.Swap(set)
}

// Replace installs set and closes the previous set once grace has passed,
// giving in-flight requests time to finish with it.
func (r *SwappableResolver) Replace(set *ProviderSet, grace time.Duration) {
	old := r.Swap(set)
	if old == nil {
		return
	}
	time.AfterFunc(grace, old.Close)
}
