// Package http contains the HTTP handlers for the local license surface.
//
// The surface is small: license status and lifecycle (activate, deactivate),
// the hardware ID for support, and health. Protected application routes are
// guarded by the license middleware, not by handlers in this package.
package http
