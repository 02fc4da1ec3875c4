package alexa_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/couchskill/pkg/alexa"
)

const sampleRequest = `{
	"version": "1.0",
	"session": {
		"new": false,
		"sessionId": "amzn1.echo-api.session.abeee1a7-aee0-41e6-8192-e6faaed9f5ef",
		"application": {"applicationId": "amzn1.echo-sdk-ams.app.000000-d0ed-0000-ad00-000000d00ebe"},
		"attributes": {"promptData": {"yesAction": "addMedia"}, "count": 3},
		"user": {"userId": "amzn1.account.AM3B227HF3FAM1B261HK7FFM3A2"}
	},
	"request": {
		"type": "IntentRequest",
		"requestId": "amzn1.echo-api.request.1",
		"timestamp": "2016-03-31T12:00:00Z",
		"locale": "en-US",
		"intent": {
			"name": "FindMovie",
			"slots": {"movieName": {"name": "movieName", "value": "the godfather"}}
		}
	}
}`

func decodeSample(t *testing.T) *alexa.RequestEnvelope {
	t.Helper()
	var env alexa.RequestEnvelope
	if err := json.Unmarshal([]byte(sampleRequest), &env); err != nil {
		t.Fatalf("unmarshal sample request: %v", err)
	}
	return &env
}

func TestRequestEnvelope_Accessors(t *testing.T) {
	t.Parallel()
	env := decodeSample(t)

	if !env.HasSession() {
		t.Fatal("HasSession() = false, want true")
	}
	if got := env.IntentName(); got != "FindMovie" {
		t.Errorf("IntentName() = %q, want FindMovie", got)
	}
	if got := env.Request.Intent.SlotValue("movieName"); got != "the godfather" {
		t.Errorf("SlotValue(movieName) = %q, want %q", got, "the godfather")
	}
	if got := env.Request.Intent.SlotValue("missing"); got != "" {
		t.Errorf("SlotValue(missing) = %q, want empty", got)
	}
	if got := env.ApplicationID(); got != "amzn1.echo-sdk-ams.app.000000-d0ed-0000-ad00-000000d00ebe" {
		t.Errorf("ApplicationID() = %q", got)
	}

	ts, err := env.Request.ParseTimestamp()
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if want := time.Date(2016, 3, 31, 12, 0, 0, 0, time.UTC); !ts.Equal(want) {
		t.Errorf("ParseTimestamp() = %v, want %v", ts, want)
	}
}

func TestRequestEnvelope_NoSession(t *testing.T) {
	t.Parallel()

	var env alexa.RequestEnvelope
	body := `{"version":"1.0","context":{"System":{"application":{"applicationId":"app-ctx"}}},"request":{"type":"LaunchRequest"}}`
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.HasSession() {
		t.Error("HasSession() = true, want false")
	}
	if got := env.ApplicationID(); got != "app-ctx" {
		t.Errorf("ApplicationID() = %q, want context fallback app-ctx", got)
	}
	if got := env.IntentName(); got != "" {
		t.Errorf("IntentName() = %q, want empty", got)
	}
	var v map[string]any
	if err := env.Session.Attribute("promptData", &v); !errors.Is(err, alexa.ErrAttributeNotFound) {
		t.Errorf("Attribute on nil session err = %v, want ErrAttributeNotFound", err)
	}
}

func TestSession_Attribute(t *testing.T) {
	t.Parallel()
	env := decodeSample(t)

	var count int
	if err := env.Session.Attribute("count", &count); err != nil {
		t.Fatalf("Attribute(count): %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	var s string
	if err := env.Session.Attribute("missing", &s); !errors.Is(err, alexa.ErrAttributeNotFound) {
		t.Errorf("Attribute(missing) err = %v, want ErrAttributeNotFound", err)
	}
	if err := env.Session.Attribute("count", &s); err == nil || errors.Is(err, alexa.ErrAttributeNotFound) {
		t.Errorf("Attribute(count) into string err = %v, want decode error", err)
	}
}

func TestNewResponse_CopiesAttributes(t *testing.T) {
	t.Parallel()
	env := decodeSample(t)

	resp := alexa.NewResponse(env)
	if !resp.HasAttribute("promptData") || !resp.HasAttribute("count") {
		t.Fatalf("response attributes = %v, want request attributes copied", resp.SessionAttributes)
	}

	resp.DeleteAttribute("promptData")
	if resp.HasAttribute("promptData") {
		t.Error("promptData still present after DeleteAttribute")
	}
	if _, ok := env.Session.Attributes["promptData"]; !ok {
		t.Error("DeleteAttribute mutated the request attributes")
	}

	if err := resp.SetAttribute("lastQuery", "heat"); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if got := string(resp.SessionAttributes["lastQuery"]); got != `"heat"` {
		t.Errorf("lastQuery = %s, want \"heat\"", got)
	}
}

func TestNewResponse_NilRequest(t *testing.T) {
	t.Parallel()

	resp := alexa.NewResponse(nil)
	if resp.Version != alexa.EnvelopeVersion {
		t.Errorf("Version = %q, want %q", resp.Version, alexa.EnvelopeVersion)
	}
	if err := resp.SetAttribute("k", 1); err != nil {
		t.Fatalf("SetAttribute on empty response: %v", err)
	}
}

func TestResponse_SpeechAndSession(t *testing.T) {
	t.Parallel()

	resp := alexa.NewResponse(nil)
	if resp.Speech() != "" {
		t.Errorf("Speech() on empty response = %q, want empty", resp.Speech())
	}

	resp.Say("Hello there.").Reprompt("Still there?")
	if got := resp.Speech(); got != "Hello there." {
		t.Errorf("Speech() = %q, want %q", got, "Hello there.")
	}
	if got := resp.Response.OutputSpeech.SSML; got != "<speak>Hello there.</speak>" {
		t.Errorf("SSML = %q", got)
	}
	if resp.SessionEnded() {
		t.Error("Reprompt should keep the session open")
	}

	resp.EndSession(true)
	if !resp.SessionEnded() {
		t.Error("SessionEnded() = false after EndSession(true)")
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	inner := decoded["response"].(map[string]any)
	if inner["shouldEndSession"] != true {
		t.Errorf("shouldEndSession = %v, want true", inner["shouldEndSession"])
	}
	if _, ok := decoded["sessionAttributes"]; ok {
		t.Error("empty sessionAttributes should be omitted")
	}
}

func TestToSSML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Hello", want: "<speak>Hello</speak>"},
		{name: "already wrapped", in: "<speak>Hello</speak>", want: "<speak>Hello</speak>"},
		{name: "bare ampersand", in: "Tom & Jerry", want: "<speak>Tom &amp; Jerry</speak>"},
		{name: "entity kept", in: "Tom &amp; Jerry", want: "<speak>Tom &amp; Jerry</speak>"},
		{name: "inner tags kept", in: `Wait <break time="1s"/> now`, want: `<speak>Wait <break time="1s"/> now</speak>`},
		{name: "bare less-than", in: "a < b", want: "<speak>a &lt; b</speak>"},
		{name: "bare greater-than", in: "Heat > Ronin", want: "<speak>Heat &gt; Ronin</speak>"},
		{name: "unknown tag escaped", in: "<script>x</script>", want: "<speak>&lt;script&gt;x&lt;/script&gt;</speak>"},
		{name: "tags and text", in: `<emphasis level="strong">1 < 2</emphasis>`, want: `<speak><emphasis level="strong">1 &lt; 2</emphasis></speak>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := alexa.ToSSML(tt.in); got != tt.want {
				t.Errorf("ToSSML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "speak envelope", in: "<speak>Hello</speak>", want: "Hello"},
		{name: "inner tags", in: `<speak>Wait <break time="1s"/>now</speak>`, want: "Wait now"},
		{name: "entities", in: "<speak>Tom &amp; Jerry</speak>", want: "Tom & Jerry"},
		{name: "quotes", in: `<speak>Try asking "Is it on the list?". It's fine</speak>`, want: `Try asking "Is it on the list?". It's fine`},
		{name: "line breaks kept", in: "<speak>one\ntwo</speak>", want: "one\ntwo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := alexa.Cleanse(tt.in); got != tt.want {
				t.Errorf("Cleanse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanse_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"Fast & Furious (2001) has been added to your list.",
		"<Untitled> (2020) isn't on your list.",
		"a < b > c",
	} {
		if got := alexa.Cleanse(alexa.ToSSML(in)); got != in {
			t.Errorf("Cleanse(ToSSML(%q)) = %q", in, got)
		}
	}
}
