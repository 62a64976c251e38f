// Package mcp implements the shared MCP protocol server for stream sessions.
//
// One Server instance is shared by every session. A transport is bound via
// Connect; from then on messages posted to that session are dispatched
// through HandleMessage and the JSON-RPC responses travel back over the
// session's SSE stream.
//
// Supported methods: initialize, ping, tools/list, tools/call, and
// notifications/* (accepted and discarded). Tool execution failures are
// reported in-band as isError results; protocol violations map to the
// standard JSON-RPC error codes.
package mcp
