// Package media defines the Provider interface for watch-list backends.
//
// A media provider wraps a service that owns a user's watch list (e.g., a
// CouchPotato server or a self-hosted PostgreSQL list) for one content domain.
// Providers are looked up by [ProviderType] through a [Resolver], which lets
// the skill handlers stay ignorant of which backend serves which domain.
//
// Implementations must be safe for concurrent use.
package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrProviderNotConfigured is returned by a [Resolver] when no provider is
// configured for the requested [ProviderType].
var ErrProviderNotConfigured = errors.New("media: provider not configured")

// ProviderType identifies the content domain a provider serves. The set is
// closed at compile time but designed to grow (e.g., TV shows).
type ProviderType string

const (
	// ProviderMovies serves feature films.
	ProviderMovies ProviderType = "MOVIES"
)

// IsValid reports whether t is a recognised provider type.
func (t ProviderType) IsValid() bool {
	switch t {
	case ProviderMovies:
		return true
	}
	return false
}

// ProviderTypes returns every recognised provider type.
func ProviderTypes() []ProviderType {
	return []ProviderType{ProviderMovies}
}

// ParseProviderType converts s into a [ProviderType]. It returns an error if
// s is not a recognised tag. Matching is exact; tags are upper case.
func ParseProviderType(s string) (ProviderType, error) {
	t := ProviderType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("media: unknown provider type %q", s)
	}
	return t, nil
}

// Media is a single item in a catalogue or on a watch list. It is stored in
// the voice session between turns, so its JSON shape is part of the session
// contract.
type Media struct {
	// Title is the display title (e.g., "The Godfather").
	Title string `json:"title"`

	// Year is the release year, or 0 when unknown.
	Year int `json:"year,omitempty"`

	// IMDB is the IMDb identifier (e.g., "tt0068646"). Providers use it as
	// the stable key when adding items.
	IMDB string `json:"imdb,omitempty"`

	// Status is the provider-reported list status (e.g., "active", "done").
	// Empty for catalogue search results.
	Status string `json:"status,omitempty"`
}

// Label returns the title followed by the year in parentheses, suitable for
// speech. The year is omitted when unknown.
func (m Media) Label() string {
	if m.Year == 0 {
		return m.Title
	}
	return m.Title + " (" + strconv.Itoa(m.Year) + ")"
}

// Provider is the abstraction over any watch-list backend.
type Provider interface {
	// Search queries the backend's catalogue for items matching query. The
	// results are candidates that may or may not be on the watch list yet,
	// ordered by the backend's relevance ranking.
	Search(ctx context.Context, query string) ([]Media, error)

	// Find returns the items already on the watch list whose titles match
	// query.
	Find(ctx context.Context, query string) ([]Media, error)

	// Add puts every item in items on the watch list. An empty slice is a
	// successful no-op. Add returns once the backend has acknowledged the
	// request or failed.
	Add(ctx context.Context, items []Media) error
}

// Pinger is implemented by providers that can report their own availability.
// Readiness checks use it when present.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Resolver maps a provider type to the provider serving it.
type Resolver interface {
	// Resolve returns the provider for t. It returns an error wrapping
	// [ErrProviderNotConfigured] when t has no provider.
	Resolve(t ProviderType) (Provider, error)
}

// ResolverFunc adapts a plain function to the [Resolver] interface.
type ResolverFunc func(t ProviderType) (Provider, error)

// Resolve calls f(t).
func (f ResolverFunc) Resolve(t ProviderType) (Provider, error) {
	return f(t)
}

// Static returns a [Resolver] that serves a fixed provider set.
func Static(providers map[ProviderType]Provider) Resolver {
	return ResolverFunc(func(t ProviderType) (Provider, error) {
		p, ok := providers[t]
		if !ok || p == nil {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, t)
		}
		return p, nil
	})
}
