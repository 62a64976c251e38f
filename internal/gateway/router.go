// ABOUTME: Handler for POST /messages - routes follow-up protocol messages
// ABOUTME: to the matching session's transport by sessionId.

package gateway

import (
	"net/http"
)

// handleMessages routes one follow-up message to its session's transport.
// A missing session is terminal for the request: the client must establish
// a new stream. No retries.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	sess, ok := g.registry.Get(sessionID)
	if sessionID == "" || !ok {
		g.logger.Warn("no transport found for session", "session_id", sessionID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "No transport found for sessionId"}`))
		return
	}

	rec := &responseRecorder{ResponseWriter: w}
	if err := sess.Transport.HandleMessage(rec, r); err != nil {
		if rec.wrote {
			// Response already in flight; nothing sane left to send
			g.logger.Warn("transport errored after response was sent",
				"session_id", sessionID,
				"error", err,
			)
			return
		}
		g.logger.Warn("transport failed to handle message",
			"session_id", sessionID,
			"error", err,
		)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// responseRecorder tracks whether anything was written so the router can
// avoid double-responding when the transport errors late.
type responseRecorder struct {
	http.ResponseWriter
	wrote bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.wrote = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}
