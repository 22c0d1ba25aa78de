// Package config supplies the orchestration-level switches: the active
// payment channel and the global aggregation enable flag.
package config

import "context"

// Settings carries the loaded switches.
type Settings struct {
	Channel string
	Enabled bool
}

// Default is the hardcoded fallback used when no source ever loads. The flow
// stays disabled until configuration proves otherwise.
func Default() Settings {
	return Settings{Channel: "swiftpass", Enabled: false}
}

// Source loads settings on demand. Implementations must return an error on
// unavailability rather than panic; the facade owns the fallback chain.
type Source interface {
	Load(ctx context.Context) (Settings, error)
}

// Static is a fixed-value Source for tests and pinned deployments.
type Static struct {
	Settings Settings
	Err      error
}

// Load implements Source.
func (s Static) Load(ctx context.Context) (Settings, error) {
	if s.Err != nil {
		return Settings{}, s.Err
	}
	return s.Settings, nil
}

// Func adapts a closure to Source.
type Func func(ctx context.Context) (Settings, error)

// Load implements Source.
func (f Func) Load(ctx context.Context) (Settings, error) { return f(ctx) }
