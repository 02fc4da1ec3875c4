package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitProvider_ServesPrometheusMetrics(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	tel, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	// The service attributes merge with the SDK default resource.
	attrs := tel.Resource.Set()
	if v, _ := attrs.Value(attribute.Key("service.name")); v.AsString() != "couchskill" {
		t.Errorf("service.name = %q, want couchskill", v.AsString())
	}
	if v, _ := attrs.Value(attribute.Key("service.version")); v.AsString() != "test" {
		t.Errorf("service.version = %q, want test", v.AsString())
	}
	if _, ok := attrs.Value(attribute.Key("telemetry.sdk.language")); !ok {
		t.Error("resource lost the SDK default attributes")
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordIntent(context.Background(), "FindMovie", "ok", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"couchskill_intent_requests_total",
		`intent="FindMovie"`,
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestInitProvider_RegistryConflict(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	tel, err := InitProvider(context.Background(), ProviderConfig{})
	if err != nil {
		t.Fatalf("first InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	// The Go collector is already registered on this registry.
	if _, err := InitProvider(context.Background(), ProviderConfig{Registry: tel.Registry}); err == nil {
		t.Error("second InitProvider on the same registry: expected error, got nil")
	}
}
