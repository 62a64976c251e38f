// ABOUTME: Handler for GET /stream - authenticates, opens the SSE transport,
// ABOUTME: registers the session, and binds it to the protocol server.

package gateway

import (
	"net/http"
	"time"

	"github.com/2389/conduit-gateway/internal/auth"
	"github.com/2389/conduit-gateway/internal/session"
)

// devTokenTTL is the lifetime of tokens minted for ?user= in development mode.
const devTokenTTL = 24 * time.Hour

// handleStream establishes a new stream session.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	identityToken, ok := g.authenticateStream(w, r)
	if !ok {
		return
	}

	// Opening the transport generates the session ID.
	transport := session.NewSSETransport("/messages", g.logger)
	sess := &session.Session{
		ID:            transport.SessionID(),
		Transport:     transport,
		IdentityToken: identityToken,
		ConnectedAt:   time.Now(),
	}

	g.registry.Put(sess)

	// Teardown fires exactly once, whether the client disconnects or
	// shutdown closes the transport first. Remove tolerates both orders.
	transport.OnClose(func() {
		g.registry.Remove(sess.ID)
	})

	// Bind to the shared protocol server; message dispatch is its concern
	// from here on.
	g.mcpServer.Connect(transport)

	g.logConnectedSessions()

	if err := transport.Serve(w, r); err != nil {
		g.logger.Error("stream transport failed", "session_id", sess.ID, "error", err)
		_ = transport.Close()
	}
}

// authenticateStream extracts and validates the identity credential.
// On failure it writes 401 and returns ok=false; no state is mutated.
func (g *Gateway) authenticateStream(w http.ResponseWriter, r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		token, errMsg := auth.ExtractBearerToken(authHeader)
		if errMsg != "" {
			http.Error(w, errMsg, http.StatusUnauthorized)
			return "", false
		}
		if _, err := g.verifier.Verify(token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return "", false
		}
		return token, true
	}

	// Development mode accepts a plaintext user identifier and mints a token
	if g.config.IsDevelopment() {
		if user := r.URL.Query().Get("user"); user != "" {
			token, err := g.verifier.Generate(user, devTokenTTL)
			if err != nil {
				http.Error(w, "minting development token failed", http.StatusInternalServerError)
				return "", false
			}
			g.logger.Debug("minted development token", "user", user)
			return token, true
		}
	}

	http.Error(w, "missing credentials", http.StatusUnauthorized)
	return "", false
}

// logConnectedSessions writes a diagnostic listing of all active sessions and
// their decoded (unverified) user identifiers. Observability only.
func (g *Gateway) logConnectedSessions() {
	sessions := g.registry.List()
	ids := make([]string, 0, len(sessions))
	users := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
		users = append(users, auth.DecodeSubject(sess.IdentityToken))
	}
	g.logger.Info("connected sessions",
		"count", len(sessions),
		"session_ids", ids,
		"users", users,
	)
}
