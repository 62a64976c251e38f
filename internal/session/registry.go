// ABOUTME: Process-wide registry of active stream sessions keyed by session ID.
// ABOUTME: Owns insert, lookup, idempotent removal, and shutdown drain.

package session

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Transport is the bidirectional channel abstraction for one session.
// Implementations push server-to-client messages over the open stream,
// accept client-to-server messages, and can be closed exactly once.
type Transport interface {
	// SessionID returns the unique identifier generated when the transport opened.
	SessionID() string

	// Send pushes a server-to-client message over the open stream.
	Send(msg any) error

	// HandleMessage accepts a client-to-server message for this session.
	// On success the transport owns the response. An error return means
	// nothing was written and the caller should respond.
	HandleMessage(w http.ResponseWriter, r *http.Request) error

	// Close tears the stream down. Safe to call more than once.
	Close() error
}

// Session represents one authenticated client connection bound to a transport.
type Session struct {
	ID        string
	Transport Transport

	// IdentityToken is the raw signed token presented at connection time.
	// It is decoded lazily (never re-verified) for logging and diagnostics.
	IdentityToken string

	ConnectedAt time.Time
}

// Registry is the process-wide table of active sessions. All mutation is
// serialized by an internal mutex so it stays correct when connects,
// disconnects, and the shutdown drain interleave.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Put inserts or overwrites a session. Transport-generated IDs are unique in
// practice; if an ID is ever reused the last writer wins rather than failing.
func (r *Registry) Put(sess *Session) {
	r.mu.Lock()
	if _, exists := r.sessions[sess.ID]; exists {
		r.logger.Warn("session id reused, overwriting previous entry", "session_id", sess.ID)
	}
	r.sessions[sess.ID] = sess
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("=== SESSION CONNECTED ===",
		"session_id", sess.ID,
		"total_sessions", total,
	)
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	return sess, ok
}

// Remove deletes the session if present. Removing an unknown ID is a no-op,
// which keeps disconnect hooks safe when shutdown already drained the table.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	total := len(r.sessions)
	r.mu.Unlock()

	if existed {
		r.logger.Info("=== SESSION DISCONNECTED ===",
			"session_id", id,
			"total_sessions", total,
		)
	}
}

// Count returns the number of live sessions. Reporting only.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot of all current sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Drain atomically snapshots all current sessions and clears the table.
// Used once during shutdown; concurrent Remove calls from disconnect hooks
// land on the already-empty table and no-op.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.logger.Info("session registry drained", "drained", len(out))
	return out
}
