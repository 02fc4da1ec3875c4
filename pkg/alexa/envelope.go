// Package alexa models the Alexa Skills Kit JSON envelopes exchanged between
// the voice platform and a skill endpoint.
//
// Only the fields the skill reads or writes are modelled. Session attributes
// are kept as raw JSON so that typed decoding happens where the attribute is
// used, not here.
package alexa

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Request types sent by the platform.
const (
	RequestTypeLaunch       = "LaunchRequest"
	RequestTypeIntent       = "IntentRequest"
	RequestTypeSessionEnded = "SessionEndedRequest"
)

// Built-in intent names handled by the skill.
const (
	IntentYes    = "AMAZON.YesIntent"
	IntentNo     = "AMAZON.NoIntent"
	IntentCancel = "AMAZON.CancelIntent"
	IntentStop   = "AMAZON.StopIntent"
	IntentHelp   = "AMAZON.HelpIntent"
)

// EnvelopeVersion is the envelope version written into responses.
const EnvelopeVersion = "1.0"

// RequestEnvelope is the top-level body of a request to the skill endpoint.
type RequestEnvelope struct {
	Version string   `json:"version"`
	Session *Session `json:"session,omitempty"`
	Context *Context `json:"context,omitempty"`
	Request Request  `json:"request"`
}

// Session is the conversation context the platform keeps between turns.
// A nil Session means the request was sent outside a session (e.g., from a
// background event).
type Session struct {
	New         bool                       `json:"new"`
	SessionID   string                     `json:"sessionId"`
	Application Application                `json:"application"`
	Attributes  map[string]json.RawMessage `json:"attributes,omitempty"`
	User        User                       `json:"user"`
}

// Application identifies the skill a request was sent to.
type Application struct {
	ApplicationID string `json:"applicationId"`
}

// User identifies the account that spoke to the device.
type User struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken,omitempty"`
}

// Context carries device and system state. Only the application is read.
type Context struct {
	System struct {
		Application Application `json:"application"`
		User        User        `json:"user"`
	} `json:"System"`
}

// Request is the typed part of the envelope.
type Request struct {
	Type      string  `json:"type"`
	RequestID string  `json:"requestId"`
	Timestamp string  `json:"timestamp"`
	Locale    string  `json:"locale,omitempty"`
	Intent    *Intent `json:"intent,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Intent is the user's recognised goal for an utterance.
type Intent struct {
	Name               string          `json:"name"`
	ConfirmationStatus string          `json:"confirmationStatus,omitempty"`
	Slots              map[string]Slot `json:"slots,omitempty"`
}

// Slot is a named variable captured from the utterance.
type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// SlotValue returns the spoken value of the named slot, or "" when the slot
// is absent or was not filled.
func (i *Intent) SlotValue(name string) string {
	if i == nil {
		return ""
	}
	return i.Slots[name].Value
}

// IntentName returns the intent name for intent requests, or "" otherwise.
func (e *RequestEnvelope) IntentName() string {
	if e.Request.Intent == nil {
		return ""
	}
	return e.Request.Intent.Name
}

// ApplicationID returns the skill's application ID from the session, falling
// back to the system context for sessionless requests.
func (e *RequestEnvelope) ApplicationID() string {
	if e.Session != nil && e.Session.Application.ApplicationID != "" {
		return e.Session.Application.ApplicationID
	}
	if e.Context != nil {
		return e.Context.System.Application.ApplicationID
	}
	return ""
}

// HasSession reports whether the request was sent inside a session.
func (e *RequestEnvelope) HasSession() bool {
	return e.Session != nil
}

// ErrAttributeNotFound is returned by [Session.Attribute] when the key is not
// present in the session attributes.
var ErrAttributeNotFound = errors.New("alexa: session attribute not found")

// Attribute decodes the session attribute key into v. It returns
// [ErrAttributeNotFound] when the key is absent or holds JSON null.
func (s *Session) Attribute(key string, v any) error {
	if s == nil {
		return ErrAttributeNotFound
	}
	raw, ok := s.Attributes[key]
	if !ok || string(raw) == "null" {
		return ErrAttributeNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("alexa: decode session attribute %q: %w", key, err)
	}
	return nil
}

// ParseTimestamp parses the request timestamp (ISO 8601, UTC).
func (r Request) ParseTimestamp() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("alexa: parse request timestamp: %w", err)
	}
	return t, nil
}
