// Package config loads, validates, and normalizes the TOML configuration
// shared by the daemon and CLI. Defaults live in defaults.go; the embedded
// sample_config.toml documents every key for `minuteman config init`.
package config
