package config

import (
	"maps"
	"reflect"
	"slices"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ProvidersChanged is true if any provider entry or the resilience
	// settings changed, so the provider set must be rebuilt.
	ProvidersChanged bool
	ProviderChanges  []ProviderDiff

	// RestartRequired lists changed settings that only take effect after a
	// restart (e.g., "server.listen_addr").
	RestartRequired []string
}

// ProviderDiff describes what changed for a single provider type.
type ProviderDiff struct {
	Type    media.ProviderType
	Added   bool
	Removed bool
	Changed bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Providers, in type order so the diff is deterministic.
	types := slices.Sorted(maps.Keys(old.Providers))
	for _, t := range slices.Sorted(maps.Keys(new.Providers)) {
		if _, ok := old.Providers[t]; !ok {
			types = append(types, t)
		}
	}
	for _, t := range types {
		o, inOld := old.Providers[t]
		n, inNew := new.Providers[t]
		switch {
		case !inNew:
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{Type: t, Removed: true})
		case !inOld:
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{Type: t, Added: true})
		case !reflect.DeepEqual(o, n):
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{Type: t, Changed: true})
		}
	}
	d.ProvidersChanged = len(d.ProviderChanges) > 0 || old.Resilience != new.Resilience

	// Settings bound at startup.
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Skill != new.Skill {
		d.RestartRequired = append(d.RestartRequired, "skill")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}
