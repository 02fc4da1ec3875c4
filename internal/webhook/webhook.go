// Package webhook serves the skill over HTTPS.
//
// The [Handler] accepts the platform's POSTed request envelope, checks that it
// is authentic and fresh, dispatches it, and writes the response envelope.
// Handler errors never reach the platform as HTTP errors: they are answered
// with fallback speech so the user hears something useful.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/couchskill/internal/observe"
	"github.com/MrWong99/couchskill/internal/skill"
	"github.com/MrWong99/couchskill/pkg/alexa"
)

// maxBodyBytes caps the request body size.
const maxBodyBytes = 1 << 20

// Dispatcher turns a request envelope into a response envelope.
// [*skill.Router] implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *alexa.RequestEnvelope) (*alexa.ResponseEnvelope, error)
}

var _ Dispatcher = (*skill.Router)(nil)

// Option is a functional option for configuring a [Handler].
type Option func(*Handler)

// WithApplicationID rejects requests for any other skill. Empty accepts all.
func WithApplicationID(id string) Option {
	return func(h *Handler) { h.appID = id }
}

// WithVerifier enables signature verification. Default: disabled.
func WithVerifier(v *Verifier) Option {
	return func(h *Handler) { h.verifier = v }
}

// WithTimestampTolerance sets the maximum request age. Zero disables the
// check. Default: 150s.
func WithTimestampTolerance(d time.Duration) Option {
	return func(h *Handler) { h.tolerance = d }
}

// WithMetrics counts rejected requests in m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithClock sets the time source for the timestamp check.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler is the skill endpoint. It implements [http.Handler].
type Handler struct {
	dispatcher Dispatcher
	appID      string
	verifier   *Verifier
	tolerance  time.Duration
	metrics    *observe.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// New creates a Handler dispatching to d.
func New(d Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		dispatcher: d,
		tolerance:  150 * time.Second,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.LoggerFrom(ctx, h.log)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(ctx, w, "body_too_large", http.StatusRequestEntityTooLarge, err)
			return
		}
		h.reject(ctx, w, "read_error", http.StatusBadRequest, err)
		return
	}

	if h.verifier != nil {
		err := h.verifier.Verify(ctx, r.Header.Get(HeaderCertChainURL), r.Header.Get(HeaderSignature), body)
		if err != nil {
			h.reject(ctx, w, "signature", http.StatusBadRequest, err)
			return
		}
	}

	var req alexa.RequestEnvelope
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		h.reject(ctx, w, "malformed", http.StatusBadRequest, err)
		return
	}
	if h.appID != "" && req.ApplicationID() != h.appID {
		h.reject(ctx, w, "application_id", http.StatusForbidden,
			fmt.Errorf("webhook: application id %q not accepted", req.ApplicationID()))
		return
	}
	if err := h.checkTimestamp(req.Request); err != nil {
		h.reject(ctx, w, "timestamp", http.StatusBadRequest, err)
		return
	}

	resp, err := h.dispatcher.Dispatch(ctx, &req)
	if err != nil {
		resp = h.fallback(log, &req, err)
	}
	writeJSON(w, resp)
}

func (h *Handler) checkTimestamp(r alexa.Request) error {
	if h.tolerance <= 0 {
		return nil
	}
	ts, err := r.ParseTimestamp()
	if err != nil {
		return err
	}
	if age := h.now().Sub(ts); age > h.tolerance || age < -h.tolerance {
		return fmt.Errorf("webhook: request timestamp %s outside tolerance %s", r.Timestamp, h.tolerance)
	}
	return nil
}

// fallback answers a failed request with speech chosen by error kind and ends
// the session.
func (h *Handler) fallback(log *slog.Logger, req *alexa.RequestEnvelope, err error) *alexa.ResponseEnvelope {
	log = log.With("request_id", req.Request.RequestID, "intent", req.IntentName(), "err", err)

	var text string
	switch {
	case errors.Is(err, skill.ErrNoSession), skill.IsValidationError(err):
		log.Warn("rejected confirmation")
		text = skill.InvalidPromptText
	case errors.Is(err, skill.ErrProviderFailure):
		log.Error("provider failure")
		text = skill.ProviderFailureText
	default:
		log.Error("request failed")
		text = skill.GenericFailureText
	}

	resp := alexa.NewResponse(req)
	resp.DeleteAttribute(skill.PromptDataKey)
	return resp.Say(text).EndSession(true)
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, reason string, status int, err error) {
	observe.LoggerFrom(ctx, h.log).Warn("request rejected", "reason", reason, "status", status, "err", err)
	if h.metrics != nil {
		h.metrics.RecordRejected(ctx, reason)
	}
	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
