// Package session tracks active stream sessions and their transports.
//
// # Overview
//
// Each client that opens the stream endpoint gets one Session bound to one
// SSETransport. The Registry is the single long-lived owner of sessions:
// the stream handler inserts them, the message router looks them up, and
// shutdown drains them.
//
// # Registry
//
// The Registry is a mutex-protected map from session ID to Session:
//
//   - Put(sess): insert, last-writer-wins on the (unexpected) reused ID
//   - Get(id): lookup for message routing
//   - Remove(id): idempotent delete, safe from disconnect hooks
//   - Count() / List(): reporting
//   - Drain(): snapshot-and-clear, used once during shutdown
//
// A session is removed exactly once, either by the transport's disconnect
// hook or by the shutdown drain; both paths tolerate the other having run
// first.
//
// # SSETransport
//
// SSETransport implements the Transport interface over Server-Sent Events.
// Serving the stream first emits an "endpoint" event carrying the
// per-session message URL, then pumps outgoing JSON-RPC messages as
// "message" events. Posted messages are acknowledged with 202 Accepted and
// dispatched to the bound protocol handler; the handler's response travels
// back over the stream.
//
// # Thread Safety
//
// Registry and SSETransport are safe for concurrent use. Close is
// idempotent and fires the OnClose hook at most once.
package session
