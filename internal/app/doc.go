// Package app wires the application together: configuration, logging,
// OpenTelemetry, the license subsystem and the HTTP server, with graceful
// shutdown on interrupt.
package app
