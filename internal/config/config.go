// Package config provides the configuration schema, loader, and provider registry
// for the couchskill server.
package config

import (
	"time"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// LogLevel controls log verbosity for the couchskill server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultEndpointPath       = "/alexa"
	DefaultTimestampTolerance = 150 * time.Second
	DefaultMetricsPath        = "/metrics"
	DefaultServiceName        = "couchskill"
	DefaultMaxFailures        = 5
	DefaultResetTimeout       = 30 * time.Second
	DefaultHalfOpenMax        = 3
)

// MetricsDisabled as telemetry.metrics_path turns the metrics endpoint off.
const MetricsDisabled = "-"

// Config is the root configuration structure for couchskill.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Skill      SkillConfig      `yaml:"skill"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the couchskill server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// SkillConfig controls how skill requests are accepted.
type SkillConfig struct {
	// ApplicationID is the skill ID requests must carry. Empty accepts any
	// application, which is only sensible in development.
	ApplicationID string `yaml:"application_id"`

	// EndpointPath is the HTTP path the platform posts requests to.
	EndpointPath string `yaml:"endpoint_path"`

	// VerifySignatures enables request signature verification. Required for
	// skills hosted outside the platform's own functions.
	VerifySignatures bool `yaml:"verify_signatures"`

	// TimestampTolerance is the maximum age of a request timestamp.
	TimestampTolerance time.Duration `yaml:"timestamp_tolerance"`
}

// ProvidersConfig selects the provider serving each content domain, keyed by
// provider type (e.g., "MOVIES").
type ProvidersConfig map[media.ProviderType]ProviderEntry

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g.,
	// "couchpotato", "postgres").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL is the provider's API endpoint.
	BaseURL string `yaml:"base_url"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above (e.g., "dsn", "timeout"). Values may be strings,
	// numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ResilienceConfig tunes the circuit breaker guarding each provider.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures that open the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of successful probes that close the breaker.
	HalfOpenMax int `yaml:"half_open_max"`
}

// TelemetryConfig controls metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OTel service.name resource attribute.
	ServiceName string `yaml:"service_name"`

	// MetricsPath is where Prometheus metrics are served. [MetricsDisabled]
	// turns the endpoint off.
	MetricsPath string `yaml:"metrics_path"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Skill.EndpointPath == "" {
		c.Skill.EndpointPath = DefaultEndpointPath
	}
	if c.Skill.TimestampTolerance == 0 {
		c.Skill.TimestampTolerance = DefaultTimestampTolerance
	}
	if c.Resilience.MaxFailures == 0 {
		c.Resilience.MaxFailures = DefaultMaxFailures
	}
	if c.Resilience.ResetTimeout == 0 {
		c.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if c.Resilience.HalfOpenMax == 0 {
		c.Resilience.HalfOpenMax = DefaultHalfOpenMax
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
	if c.Telemetry.MetricsPath == "" {
		c.Telemetry.MetricsPath = DefaultMetricsPath
	}
}
