// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all [Checker]
//     functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// defaultTimeout is the maximum time a single readiness check may take before
// its context is cancelled.
const defaultTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g.
	// "provider:MOVIES"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// PingChecker returns a Checker that pings p.
func PingChecker(name string, p media.Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Source returns the checkers to evaluate. It is called on every /readyz
// request, so the set may change at runtime (e.g., after a config reload).
type Source func() []Checker

// Static returns a Source that always yields checkers.
func Static(checkers ...Checker) Source {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return func() []Checker { return c }
}

// Option is a functional option for configuring a [Handler].
type Option func(*Handler)

// WithTimeout sets the per-check deadline. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use.
type Handler struct {
	source  Source
	timeout time.Duration
}

// New creates a [Handler] that evaluates the checkers yielded by source on
// each /readyz request. A nil source means no checks.
func New(source Source, opts ...Option) *Handler {
	if source == nil {
		source = Static()
	}
	h := &Handler{source: source, timeout: defaultTimeout}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every [Checker]
// passes. Checkers run concurrently, each with its own deadline derived from
// the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checkers := h.source()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(checkers))
		allOK  = true
	)
	var g errgroup.Group
	for _, c := range checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			err := c.Check(ctx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
