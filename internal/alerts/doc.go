// Package alerts delivers operational events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when alerts are disabled.
// Enumerated methods cover the events operators care about so workers can
// emit consistent messages without duplicating HTTP glue.
package alerts
