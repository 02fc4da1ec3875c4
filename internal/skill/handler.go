// Package skill implements the Couch Potato intent handlers.
//
// A [Handler] turns one platform request into one response. Launch, Help,
// Cancel and No are static. Yes resolves the pending confirmation stored in
// the session's promptData and, for an addMedia confirmation, adds the stored
// search results through the provider registered for the prompt's provider
// type. FindMedia and AddMedia look a spoken title up on the watch list and
// offer to add it when it is missing.
//
// Handlers never translate errors into speech; the caller decides the
// fallback (see [Router] and the webhook package).
package skill

import (
	"log/slog"

	"github.com/MrWong99/couchskill/internal/phonetic"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// Option is a functional option for configuring a [Handler].
type Option func(*Handler)

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMatcher sets the matcher used to pick the spoken title among provider
// results. Default: phonetic.New().
func WithMatcher(m *phonetic.Matcher) Option {
	return func(h *Handler) {
		if m != nil {
			h.matcher = m
		}
	}
}

// Handler holds the collaborators shared by all intent handlers. It is safe
// for concurrent use.
type Handler struct {
	resolver media.Resolver
	log      *slog.Logger
	matcher  *phonetic.Matcher
}

// New creates a Handler that looks providers up through resolver.
func New(resolver media.Resolver, opts ...Option) *Handler {
	h := &Handler{
		resolver: resolver,
		log:      slog.Default(),
		matcher:  phonetic.New(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// provider resolves the provider for t, wrapping failures in a
// [*ProviderError].
func (h *Handler) provider(t media.ProviderType) (media.Provider, error) {
	p, err := h.resolver.Resolve(t)
	if err != nil {
		return nil, providerErr(t, "resolve", err)
	}
	return p, nil
}
