package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/couchskill/internal/config"
	"github.com/MrWong99/couchskill/pkg/provider/media"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			media.ProviderMovies: {
				Name:    "couchpotato",
				BaseURL: "http://cp:5050",
				APIKey:  "k",
				Options: map[string]any{"timeout": "5s"},
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.ProvidersChanged || len(d.ProviderChanges) != 0 || len(d.RestartRequired) != 0 {
		t.Errorf("Diff of identical configs = %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	newCfg := baseConfig()
	newCfg.Server.LogLevel = config.LogDebug

	d := config.Diff(baseConfig(), newCfg)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("Diff = %+v, want log level change to debug", d)
	}
	if d.ProvidersChanged {
		t.Error("log level change marked providers as changed")
	}
}

func TestDiff_Providers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []config.ProviderDiff
	}{
		{
			name: "option changed",
			mutate: func(c *config.Config) {
				e := c.Providers[media.ProviderMovies]
				e.Options = map[string]any{"timeout": "10s"}
				c.Providers[media.ProviderMovies] = e
			},
			want: []config.ProviderDiff{{Type: media.ProviderMovies, Changed: true}},
		},
		{
			name: "removed",
			mutate: func(c *config.Config) {
				delete(c.Providers, media.ProviderMovies)
			},
			want: []config.ProviderDiff{{Type: media.ProviderMovies, Removed: true}},
		},
		{
			name: "added",
			mutate: func(c *config.Config) {
				c.Providers["TV"] = config.ProviderEntry{Name: "postgres"}
			},
			want: []config.ProviderDiff{{Type: "TV", Added: true}},
		},
		{
			name: "breaker settings only",
			mutate: func(c *config.Config) {
				c.Resilience.ResetTimeout = time.Minute
			},
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tc.mutate(newCfg)

			d := config.Diff(baseConfig(), newCfg)
			if !d.ProvidersChanged {
				t.Error("ProvidersChanged = false")
			}
			if !slices.Equal(d.ProviderChanges, tc.want) {
				t.Errorf("ProviderChanges = %+v, want %+v", d.ProviderChanges, tc.want)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	newCfg := baseConfig()
	newCfg.Server.ListenAddr = ":9000"
	newCfg.Server.TLS = &config.TLSConfig{CertFile: "a", KeyFile: "b"}
	newCfg.Skill.VerifySignatures = true
	newCfg.Telemetry.MetricsPath = "/m"

	d := config.Diff(baseConfig(), newCfg)
	want := []string{"server.listen_addr", "server.tls", "skill", "telemetry"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}
