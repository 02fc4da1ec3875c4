package skill

import (
	"context"
	"fmt"

	"github.com/MrWong99/couchskill/internal/observe"
	"github.com/MrWong99/couchskill/pkg/alexa"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// Launch welcomes the user with the help text and keeps the session open.
func (h *Handler) Launch(req *alexa.RequestEnvelope) *alexa.ResponseEnvelope {
	return alexa.NewResponse(req).Say(HelpText).Reprompt(RepromptText)
}

// Help speaks the help text and keeps the session open.
func (h *Handler) Help(req *alexa.RequestEnvelope) *alexa.ResponseEnvelope {
	return alexa.NewResponse(req).Say(HelpText).Reprompt(RepromptText)
}

// Cancel says goodbye, drops any pending confirmation, and ends the session.
func (h *Handler) Cancel(req *alexa.RequestEnvelope) *alexa.ResponseEnvelope {
	resp := alexa.NewResponse(req)
	resp.DeleteAttribute(PromptDataKey)
	return resp.Say(CancelText).EndSession(true)
}

// No acknowledges a declined confirmation, drops it, and ends the session.
func (h *Handler) No(req *alexa.RequestEnvelope) *alexa.ResponseEnvelope {
	resp := alexa.NewResponse(req)
	resp.DeleteAttribute(PromptDataKey)
	return resp.Say(NoText).EndSession(true)
}

// Yes resolves the pending confirmation stored in the session.
//
// Validation runs before any side effect, in order: the request must carry a
// session ([ErrNoSession]), the session must hold promptData
// ([ErrMissingPromptData]), yesAction must be known ([ErrUnknownYesAction]),
// and an addMedia confirmation must name a recognised provider type
// ([ErrMissingProviderType]). A provider that cannot be resolved is reported
// as a [*ProviderError] before Add is called.
//
// On success Yes starts the provider call and returns a [Task]. Task.Wait
// returns the response speaking the stored yesResponse verbatim once the
// call succeeds, or the call's error wrapped in a [*ProviderError].
func (h *Handler) Yes(ctx context.Context, req *alexa.RequestEnvelope) (*Task, error) {
	prompt, err := ReadPrompt(req)
	if err != nil {
		return nil, err
	}

	switch p := prompt.(type) {
	case AddMediaPrompt:
		return h.confirmAdd(ctx, req, p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownYesAction, prompt.Action())
	}
}

func (h *Handler) confirmAdd(ctx context.Context, req *alexa.RequestEnvelope, p AddMediaPrompt) (*Task, error) {
	provider, err := h.provider(p.ProviderType)
	if err != nil {
		return nil, err
	}

	resp := alexa.NewResponse(req)
	resp.DeleteAttribute(PromptDataKey)

	log := observe.LoggerFrom(ctx, h.log)
	items := p.SearchResults
	return startTask(ctx, resp,
		func(ctx context.Context) error {
			if err := provider.Add(ctx, items); err != nil {
				log.Warn("add media failed", "provider_type", string(p.ProviderType), "items", len(items), "err", err)
				return providerErr(p.ProviderType, "add", err)
			}
			log.Info("media added", "provider_type", string(p.ProviderType), "items", labels(items))
			return nil
		},
		func(resp *alexa.ResponseEnvelope) {
			resp.Say(p.YesResponse).EndSession(true)
		},
	), nil
}

func labels(items []media.Media) []string {
	out := make([]string, len(items))
	for i, m := range items {
		out[i] = m.Label()
	}
	return out
}
