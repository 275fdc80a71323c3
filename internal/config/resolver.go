package config

import (
	"maps"
	"slices"
)

// Resolve returns the module IDs named by the configuration, sorted so
// module loading is deterministic across restarts. Only configured
// modules load; compiled-in modules without an entry stay dormant.
func Resolve(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Modules))
}
