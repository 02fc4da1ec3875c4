package alexa

import (
	"encoding/json"
	"fmt"
	"maps"
)

// ResponseEnvelope is the top-level body the skill returns to the platform.
//
// The platform only persists session attributes that are echoed back, so
// [NewResponse] starts from a copy of the request's attributes.
type ResponseEnvelope struct {
	Version           string                     `json:"version"`
	SessionAttributes map[string]json.RawMessage `json:"sessionAttributes,omitempty"`
	Response          Response                   `json:"response"`
}

// Response holds what the device should say and whether the session stays
// open.
type Response struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Reprompt         *Reprompt     `json:"reprompt,omitempty"`
	ShouldEndSession *bool         `json:"shouldEndSession,omitempty"`
}

// OutputSpeech is speech in SSML form.
type OutputSpeech struct {
	Type string `json:"type"`
	SSML string `json:"ssml,omitempty"`
	Text string `json:"text,omitempty"`
}

// Reprompt is spoken when the user does not answer within a few seconds.
type Reprompt struct {
	OutputSpeech OutputSpeech `json:"outputSpeech"`
}

// NewResponse creates a response for req, carrying over its session
// attributes. req may be nil.
func NewResponse(req *RequestEnvelope) *ResponseEnvelope {
	resp := &ResponseEnvelope{Version: EnvelopeVersion}
	if req != nil && req.Session != nil && len(req.Session.Attributes) > 0 {
		resp.SessionAttributes = maps.Clone(req.Session.Attributes)
	}
	return resp
}

// Say sets the output speech. Plain text is wrapped in <speak> tags.
func (r *ResponseEnvelope) Say(text string) *ResponseEnvelope {
	r.Response.OutputSpeech = &OutputSpeech{Type: "SSML", SSML: ToSSML(text)}
	return r
}

// Reprompt sets the speech repeated when the user stays silent. It keeps the
// session open.
func (r *ResponseEnvelope) Reprompt(text string) *ResponseEnvelope {
	r.Response.Reprompt = &Reprompt{OutputSpeech: OutputSpeech{Type: "SSML", SSML: ToSSML(text)}}
	return r.EndSession(false)
}

// EndSession sets whether the platform closes the session after speaking.
func (r *ResponseEnvelope) EndSession(end bool) *ResponseEnvelope {
	r.Response.ShouldEndSession = &end
	return r
}

// SetAttribute encodes v as JSON and stores it under key.
func (r *ResponseEnvelope) SetAttribute(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("alexa: encode session attribute %q: %w", key, err)
	}
	if r.SessionAttributes == nil {
		r.SessionAttributes = make(map[string]json.RawMessage)
	}
	r.SessionAttributes[key] = raw
	return nil
}

// DeleteAttribute removes key from the outgoing session attributes.
func (r *ResponseEnvelope) DeleteAttribute(key string) {
	delete(r.SessionAttributes, key)
}

// HasAttribute reports whether key is present in the outgoing attributes.
func (r *ResponseEnvelope) HasAttribute(key string) bool {
	_, ok := r.SessionAttributes[key]
	return ok
}

// Speech returns the output speech with markup removed, or "" when nothing
// is said.
func (r *ResponseEnvelope) Speech() string {
	if r.Response.OutputSpeech == nil {
		return ""
	}
	if r.Response.OutputSpeech.SSML == "" {
		return r.Response.OutputSpeech.Text
	}
	return Cleanse(r.Response.OutputSpeech.SSML)
}

// SessionEnded reports whether the response closes the session.
func (r *ResponseEnvelope) SessionEnded() bool {
	return r.Response.ShouldEndSession != nil && *r.Response.ShouldEndSession
}
