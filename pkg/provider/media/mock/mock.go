// Package mock provides test doubles for the media.Provider and
// media.Resolver interfaces.
//
// Use Provider to feed canned catalogue and watch-list results to the skill
// handlers and to verify which items were added.
//
// Example:
//
//	p := &mock.Provider{
//	    SearchResult: []media.Media{{Title: "The Godfather", Year: 1972}},
//	}
//	r := &mock.Resolver{Provider: p}
//	h := skill.New(r)
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// QueryCall records a single invocation of Search or Find.
type QueryCall struct {
	// Ctx is the context passed to the method.
	Ctx context.Context
	// Query is the query string passed to the method.
	Query string
}

// AddCall records a single invocation of Add.
type AddCall struct {
	// Ctx is the context passed to Add.
	Ctx context.Context
	// Items is a copy of the items passed to Add.
	Items []media.Media
}

// Provider is a mock implementation of media.Provider and media.Pinger.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SearchResult is returned by Search.
	SearchResult []media.Media

	// SearchErr, if non-nil, is returned as the error from Search.
	SearchErr error

	// FindResult is returned by Find.
	FindResult []media.Media

	// FindErr, if non-nil, is returned as the error from Find.
	FindErr error

	// AddErr, if non-nil, is returned as the error from Add.
	AddErr error

	// AddFunc, if set, is called by Add after the call is recorded and its
	// result is returned instead of AddErr. Useful to block or observe the
	// context.
	AddFunc func(ctx context.Context, items []media.Media) error

	// PingErr is returned by Ping.
	PingErr error

	// --- Call records ---

	// SearchCalls records every call to Search in order.
	SearchCalls []QueryCall

	// FindCalls records every call to Find in order.
	FindCalls []QueryCall

	// AddCalls records every call to Add in order.
	AddCalls []AddCall

	// PingCalls counts calls to Ping.
	PingCalls int
}

// Search records the call and returns SearchResult, SearchErr.
func (p *Provider) Search(ctx context.Context, query string) ([]media.Media, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls = append(p.SearchCalls, QueryCall{Ctx: ctx, Query: query})
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	return slices.Clone(p.SearchResult), nil
}

// Find records the call and returns FindResult, FindErr.
func (p *Provider) Find(ctx context.Context, query string) ([]media.Media, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FindCalls = append(p.FindCalls, QueryCall{Ctx: ctx, Query: query})
	if p.FindErr != nil {
		return nil, p.FindErr
	}
	return slices.Clone(p.FindResult), nil
}

// Add records the call and returns AddErr (or the result of AddFunc).
func (p *Provider) Add(ctx context.Context, items []media.Media) error {
	p.mu.Lock()
	p.AddCalls = append(p.AddCalls, AddCall{Ctx: ctx, Items: slices.Clone(items)})
	fn, err := p.AddFunc, p.AddErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, items)
	}
	return err
}

// Ping records the call and returns PingErr.
func (p *Provider) Ping(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PingCalls++
	return p.PingErr
}

// AddCallCount returns the number of Add calls. Thread-safe.
func (p *Provider) AddCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.AddCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls = nil
	p.FindCalls = nil
	p.AddCalls = nil
	p.PingCalls = 0
}

// ResolveCall records a single invocation of Resolver.Resolve.
type ResolveCall struct {
	// Type is the provider type passed to Resolve.
	Type media.ProviderType
}

// Resolver is a mock implementation of media.Resolver. It returns Provider for
// every provider type unless Err is set.
type Resolver struct {
	mu sync.Mutex

	// Provider is returned by Resolve.
	Provider media.Provider

	// Err, if non-nil, is returned as the error from Resolve.
	Err error

	// Calls records every call to Resolve in order.
	Calls []ResolveCall
}

// Resolve records the call and returns Provider, Err.
func (r *Resolver) Resolve(t media.ProviderType) (media.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, ResolveCall{Type: t})
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Provider, nil
}

// CallCount returns the number of Resolve calls. Thread-safe.
func (r *Resolver) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Compile-time interface checks.
var (
	_ media.Provider = (*Provider)(nil)
	_ media.Pinger   = (*Provider)(nil)
	_ media.Resolver = (*Resolver)(nil)
)
