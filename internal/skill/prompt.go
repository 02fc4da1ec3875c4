package skill

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/couchskill/pkg/alexa"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// PromptDataKey is the session attribute holding the pending confirmation.
const PromptDataKey = "promptData"

// YesAction tags what a "yes" answer to the pending question does.
type YesAction string

const (
	// YesActionAddMedia adds the stored search results to the watch list.
	YesActionAddMedia YesAction = "addMedia"
)

// Prompt is a pending yes/no confirmation. The concrete type determines what
// a "yes" does; [AddMediaPrompt] is the only variant.
type Prompt interface {
	// Action returns the tag stored as yesAction.
	Action() YesAction
	// Response returns the speech for a successful "yes".
	Response() string

	isPrompt()
}

// AddMediaPrompt asks whether to add SearchResults to the watch list of
// ProviderType.
type AddMediaPrompt struct {
	YesResponse   string
	ProviderType  media.ProviderType
	SearchResults []media.Media
}

// Action implements [Prompt].
func (AddMediaPrompt) Action() YesAction { return YesActionAddMedia }

// Response implements [Prompt].
func (p AddMediaPrompt) Response() string { return p.YesResponse }

func (AddMediaPrompt) isPrompt() {}

// promptWire is the JSON shape of the promptData session attribute.
type promptWire struct {
	YesAction     YesAction     `json:"yesAction"`
	YesResponse   string        `json:"yesResponse"`
	ProviderType  string        `json:"providerType,omitempty"`
	SearchResults []media.Media `json:"searchResults"`
}

// MarshalJSON encodes the prompt in its session attribute form.
func (p AddMediaPrompt) MarshalJSON() ([]byte, error) {
	results := p.SearchResults
	if results == nil {
		results = []media.Media{}
	}
	return json.Marshal(promptWire{
		YesAction:     YesActionAddMedia,
		YesResponse:   p.YesResponse,
		ProviderType:  string(p.ProviderType),
		SearchResults: results,
	})
}

// DecodePrompt decodes a promptData attribute into its [Prompt] variant.
// Checks run in order: the action must be known, then the fields that
// action requires must be present. Fields are decoded one at a time so a
// mistyped field fails with the error of the check it belongs to. Every
// error wraps [ErrInvalidPrompt].
func DecodePrompt(raw json.RawMessage) (Prompt, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrompt, err)
	}

	var action YesAction
	if err := decodeField(fields, "yesAction", &action); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownYesAction, err)
	}

	switch action {
	case YesActionAddMedia:
		return decodeAddMedia(fields)
	case "":
		return nil, ErrUnknownYesAction
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownYesAction, action)
	}
}

func decodeAddMedia(fields map[string]json.RawMessage) (Prompt, error) {
	var pt string
	if err := decodeField(fields, "providerType", &pt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingProviderType, err)
	}
	t, err := media.ParseProviderType(pt)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingProviderType, pt)
	}

	p := AddMediaPrompt{ProviderType: t}
	if err := decodeField(fields, "yesResponse", &p.YesResponse); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrompt, err)
	}
	if err := decodeField(fields, "searchResults", &p.SearchResults); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrompt, err)
	}
	if p.SearchResults == nil {
		p.SearchResults = []media.Media{}
	}
	return p, nil
}

// decodeField decodes fields[key] into v. An absent key or JSON null leaves v
// untouched.
func decodeField(fields map[string]json.RawMessage, key string, v any) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

// ReadPrompt returns the pending confirmation stored in the request session.
func ReadPrompt(req *alexa.RequestEnvelope) (Prompt, error) {
	if !req.HasSession() {
		return nil, ErrNoSession
	}
	raw, ok := req.Session.Attributes[PromptDataKey]
	if !ok || string(raw) == "null" {
		return nil, ErrMissingPromptData
	}
	return DecodePrompt(raw)
}

// IsValidationError reports whether err is a prompt validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPrompt)
}
