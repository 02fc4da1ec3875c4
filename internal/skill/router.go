package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/couchskill/internal/observe"
	"github.com/MrWong99/couchskill/pkg/alexa"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// Custom intents and slots defined by the interaction model.
const (
	IntentFindMovie = "FindMovie"
	IntentAddMovie  = "AddMovie"
	SlotMovieName   = "movieName"
)

// RouterOption is a functional option for configuring a [Router].
type RouterOption func(*Router)

// WithMetrics records every dispatched request. A nil m disables recording,
// which is also the default.
func WithMetrics(m *observe.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithRouterLogger sets the logger. Default: slog.Default().
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// Router dispatches a request to the [Handler] method for its request type
// and intent name.
type Router struct {
	h       *Handler
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewRouter creates a Router over h.
func NewRouter(h *Handler, opts ...RouterOption) *Router {
	r := &Router{h: h, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dispatch handles req and returns the response to send. Handler errors are
// returned unchanged; translating them into speech is the caller's job.
//
// Unknown intents are answered with the help text. A SessionEndedRequest gets
// an empty response, which the platform requires but never speaks.
func (r *Router) Dispatch(ctx context.Context, req *alexa.RequestEnvelope) (*alexa.ResponseEnvelope, error) {
	if req == nil {
		return nil, errors.New("skill: nil request")
	}
	name := routeName(req)

	ctx, span := observe.StartSpan(ctx, "skill.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("skill.request_type", req.Request.Type),
		attribute.String("skill.intent", name),
	)

	start := time.Now()
	resp, err := r.route(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if r.metrics != nil {
		r.metrics.RecordIntent(ctx, name, Outcome(err), time.Since(start))
	}
	return resp, err
}

func (r *Router) route(ctx context.Context, req *alexa.RequestEnvelope) (*alexa.ResponseEnvelope, error) {
	switch req.Request.Type {
	case alexa.RequestTypeLaunch:
		return r.h.Launch(req), nil
	case alexa.RequestTypeSessionEnded:
		observe.LoggerFrom(ctx, r.log).Debug("session ended", "reason", req.Request.Reason)
		return alexa.NewResponse(nil), nil
	case alexa.RequestTypeIntent:
	default:
		return nil, fmt.Errorf("skill: unsupported request type %q", req.Request.Type)
	}

	switch name := req.IntentName(); name {
	case alexa.IntentYes:
		task, err := r.h.Yes(ctx, req)
		if err != nil {
			return nil, err
		}
		return task.Wait()
	case alexa.IntentNo:
		return r.h.No(req), nil
	case alexa.IntentCancel, alexa.IntentStop:
		return r.h.Cancel(req), nil
	case alexa.IntentHelp:
		return r.h.Help(req), nil
	case IntentFindMovie:
		return r.h.FindMedia(ctx, req, media.ProviderMovies)
	case IntentAddMovie:
		return r.h.AddMedia(ctx, req, media.ProviderMovies)
	default:
		observe.LoggerFrom(ctx, r.log).Warn("answering with help", "intent", name, "err", ErrUnknownIntent)
		return r.h.Help(req), nil
	}
}

// Outcome classifies err for metrics and logs: "ok", "no_session",
// "invalid_prompt", "provider_error" or "error".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoSession):
		return "no_session"
	case errors.Is(err, ErrInvalidPrompt):
		return "invalid_prompt"
	case errors.Is(err, ErrProviderFailure):
		return "provider_error"
	default:
		return "error"
	}
}

func routeName(req *alexa.RequestEnvelope) string {
	if name := req.IntentName(); name != "" {
		return name
	}
	return req.Request.Type
}
