package skill

import (
	"errors"
	"fmt"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// ErrNoSession is returned by [Handler.Yes] when the request was sent outside
// a session, so there is no pending confirmation to evaluate.
var ErrNoSession = errors.New("skill: request has no session")

// ErrInvalidPrompt is the class of every validation failure of the stored
// prompt data. Match it with errors.Is to handle all of them at once.
var ErrInvalidPrompt = errors.New("skill: invalid prompt data")

// Validation errors. Each wraps [ErrInvalidPrompt].
var (
	// ErrMissingPromptData means the session holds no pending confirmation.
	ErrMissingPromptData = fmt.Errorf("%w: no pending confirmation", ErrInvalidPrompt)

	// ErrUnknownYesAction means yesAction is missing or not a known action.
	ErrUnknownYesAction = fmt.Errorf("%w: unknown yes action", ErrInvalidPrompt)

	// ErrMissingProviderType means an addMedia confirmation lacks a
	// recognised provider type.
	ErrMissingProviderType = fmt.Errorf("%w: missing provider type", ErrInvalidPrompt)
)

// ErrProviderFailure is matched by every [*ProviderError].
var ErrProviderFailure = errors.New("skill: provider failure")

// ErrUnknownIntent is returned by [Router] for intents it has no handler for.
var ErrUnknownIntent = errors.New("skill: unknown intent")

// ProviderError reports a failed call to a media provider, including failure
// to resolve one. It is not translated by the handlers.
type ProviderError struct {
	// Type is the provider type the call was made for.
	Type media.ProviderType
	// Op is the provider operation: "resolve", "search", "find" or "add".
	Op string
	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("skill: %s provider %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap exposes both [ErrProviderFailure] and the underlying error to
// errors.Is and errors.As.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProviderFailure, e.Err}
}

func providerErr(t media.ProviderType, op string, err error) error {
	return &ProviderError{Type: t, Op: op, Err: err}
}
