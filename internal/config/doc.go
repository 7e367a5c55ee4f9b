// Package config is the single source of truth for application configuration
// and filesystem paths.
//
// Configuration is resolved in three layers: compile-time product constants
// (constants.go), environment variables processed with envconfig under the
// NEXUS prefix, and an optional YAML file next to the executable. License
// policy values (grace period, online check interval, authority URL) are
// fixed at startup and never re-read.
package config
