package config

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// Built-in provider names.
const (
	ProviderCouchPotato = "couchpotato"
	ProviderPostgres    = "postgres"
)

// ValidProviderNames lists the provider implementations that ship with
// couchskill. Used by [Validate] to reject unknown provider names.
var ValidProviderNames = []string{ProviderCouchPotato, ProviderPostgres}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Skill
	if cfg.Skill.EndpointPath != "" && !strings.HasPrefix(cfg.Skill.EndpointPath, "/") {
		errs = append(errs, fmt.Errorf("skill.endpoint_path %q must start with /", cfg.Skill.EndpointPath))
	}
	if cfg.Skill.TimestampTolerance < 0 {
		errs = append(errs, fmt.Errorf("skill.timestamp_tolerance %s must be positive", cfg.Skill.TimestampTolerance))
	}

	// Providers
	for _, t := range sortedTypes(cfg.Providers) {
		errs = append(errs, validateProvider(t, cfg.Providers[t])...)
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", cfg.Resilience.HalfOpenMax))
	}

	// Telemetry
	if p := cfg.Telemetry.MetricsPath; p != "" && p != MetricsDisabled && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}
	if p := cfg.Telemetry.MetricsPath; p != "" && p == cfg.Skill.EndpointPath {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q collides with skill.endpoint_path", p))
	}

	return errors.Join(errs...)
}

func validateProvider(t media.ProviderType, e ProviderEntry) []error {
	prefix := fmt.Sprintf("providers.%s", t)
	if !t.IsValid() {
		return []error{fmt.Errorf("%s: unknown provider type; valid values: %v", prefix, media.ProviderTypes())}
	}

	var errs []error
	switch e.Name {
	case "":
		errs = append(errs, fmt.Errorf("%s.name is required", prefix))
	case ProviderCouchPotato:
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for %s", prefix, e.Name))
		}
		if e.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for %s", prefix, e.Name))
		}
	case ProviderPostgres:
		if optString(e.Options, "dsn") == "" {
			errs = append(errs, fmt.Errorf("%s.options.dsn is required for %s", prefix, e.Name))
		}
	default:
		if !slices.Contains(ValidProviderNames, e.Name) {
			errs = append(errs, fmt.Errorf("%s.name %q is unknown; valid values: %v", prefix, e.Name, ValidProviderNames))
		}
	}
	return errs
}

func sortedTypes(p ProvidersConfig) []media.ProviderType {
	return slices.Sorted(maps.Keys(p))
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
