// Package gateway wires the session registry, protocol server, tool catalog,
// and setup flow into one HTTP server and owns their lifecycle.
//
// # HTTP Surface
//
//   - GET  /stream                    establish an authenticated SSE session
//   - POST /messages?sessionId=<id>   route a protocol message to its session
//   - GET  /health                    status and counters, pure read
//   - GET  /setup?token=<id>          integration setup page
//   - POST /api/setup-tokens          mint a setup token (bearer auth)
//
// # Lifecycle
//
// Run blocks until the context is canceled (SIGINT/SIGTERM via the caller),
// then Shutdown drains the session registry, closes every transport
// concurrently, closes the protocol server, and stops the HTTP server.
// A second Shutdown operates on an empty registry and simply proceeds.
//
// Listeners come from plain TCP or an embedded Tailscale node (tsnet),
// optionally exposed publicly via Funnel.
package gateway
