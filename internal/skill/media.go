package skill

import (
	"context"
	"strings"

	"github.com/MrWong99/couchskill/internal/observe"
	"github.com/MrWong99/couchskill/pkg/alexa"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// FindMedia answers "is {title} on the list?". A title already on the watch
// list is confirmed. Otherwise the best catalogue candidate is offered and a
// pending addMedia confirmation is stored in the session.
func (h *Handler) FindMedia(ctx context.Context, req *alexa.RequestEnvelope, t media.ProviderType) (*alexa.ResponseEnvelope, error) {
	return h.lookup(ctx, req, t, foundText)
}

// AddMedia handles "add {title}". It behaves like [Handler.FindMedia] but
// tells the user the title is already on the list when it is.
func (h *Handler) AddMedia(ctx context.Context, req *alexa.RequestEnvelope, t media.ProviderType) (*alexa.ResponseEnvelope, error) {
	return h.lookup(ctx, req, t, alreadyOnListText)
}

func (h *Handler) lookup(ctx context.Context, req *alexa.RequestEnvelope, t media.ProviderType, onList func(string) string) (*alexa.ResponseEnvelope, error) {
	resp := alexa.NewResponse(req)

	query := strings.TrimSpace(slotValue(req, SlotMovieName))
	if query == "" {
		return resp.Say(AskTitleText).Reprompt(AskTitleText), nil
	}

	provider, err := h.provider(t)
	if err != nil {
		return nil, err
	}
	log := observe.LoggerFrom(ctx, h.log).With("provider_type", string(t), "query", query)

	listed, err := provider.Find(ctx, query)
	if err != nil {
		return nil, providerErr(t, "find", err)
	}
	if m, ok := h.best(query, listed); ok {
		log.Debug("title on watch list", "match", m.Label())
		resp.DeleteAttribute(PromptDataKey)
		return resp.Say(onList(m.Label())).EndSession(true), nil
	}

	candidates, err := provider.Search(ctx, query)
	if err != nil {
		return nil, providerErr(t, "search", err)
	}
	if len(candidates) == 0 {
		log.Debug("title not in catalogue")
		resp.DeleteAttribute(PromptDataKey)
		return resp.Say(notFoundText(query)).EndSession(true), nil
	}

	c, ok := h.best(query, candidates)
	if !ok {
		c = candidates[0]
	}
	prompt := AddMediaPrompt{
		YesResponse:   addedText(c.Label()),
		ProviderType:  t,
		SearchResults: []media.Media{c},
	}
	if err := resp.SetAttribute(PromptDataKey, prompt); err != nil {
		return nil, err
	}
	log.Debug("offering title", "candidate", c.Label())
	return resp.Say(offerText(c.Title, c.Label())).Reprompt(ConfirmPrompt), nil
}

// best returns the item whose title matches query most closely.
func (h *Handler) best(query string, items []media.Media) (media.Media, bool) {
	if len(items) == 0 {
		return media.Media{}, false
	}
	titles := make([]string, len(items))
	for i, m := range items {
		titles[i] = m.Title
	}
	idx, _, ok := h.matcher.Best(query, titles)
	if !ok {
		return media.Media{}, false
	}
	return items[idx], true
}

func slotValue(req *alexa.RequestEnvelope, name string) string {
	if req == nil {
		return ""
	}
	return req.Request.Intent.SlotValue(name)
}
