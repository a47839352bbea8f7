// Package config provides centralized configuration management for the
// entropy study pipeline and web service. Configuration is assembled from
// defaults, an optional YAML file, and EMIS_-prefixed environment
// variables (highest precedence), then validated.
//
// The package is also the single source of truth for filesystem paths:
// cache artifacts, generated reports and log files all resolve through
// Paths so the stage binaries and the web service agree on layout.
package config
