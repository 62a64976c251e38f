// ABOUTME: Server-Sent Events transport for one stream session.
// ABOUTME: Emits the per-session message endpoint and pumps JSON-RPC messages.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// MaxMessageSize is the maximum allowed size for posted messages (1MB).
const MaxMessageSize = 1 << 20

// ErrTransportClosed indicates a send or dispatch on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// ErrNoHandler indicates a message arrived before the transport was bound
// to a protocol server.
var ErrNoHandler = errors.New("transport not bound to a message handler")

// Handler processes one client-to-server protocol message for a session.
// The returned message, if non-nil, is pushed back over the session's stream.
type Handler interface {
	HandleMessage(ctx context.Context, sessionID string, body []byte) (any, error)
}

// SSETransport implements Transport over a Server-Sent Events response.
// Opening the transport generates the unique session ID as a side effect.
type SSETransport struct {
	id          string
	messagePath string
	logger      *slog.Logger

	outgoing chan any
	done     chan struct{}

	closeOnce sync.Once

	mu      sync.RWMutex
	handler Handler
	onClose func()
}

// NewSSETransport creates a transport whose endpoint event will point clients
// at messagePath (e.g. "/messages"). A fresh UUID session ID is generated.
func NewSSETransport(messagePath string, logger *slog.Logger) *SSETransport {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &SSETransport{
		id:          id,
		messagePath: messagePath,
		logger:      logger.With("session_id", id),
		outgoing:    make(chan any, 16),
		done:        make(chan struct{}),
	}
}

// SessionID returns the transport's generated session identifier.
func (t *SSETransport) SessionID() string {
	return t.id
}

// Bind attaches the shared protocol server that will dispatch messages
// posted to this session.
func (t *SSETransport) Bind(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// OnClose registers a hook invoked exactly once when the transport closes,
// whether by client disconnect or by shutdown.
func (t *SSETransport) OnClose(fn func()) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// Serve writes the SSE stream to w until the client disconnects or the
// transport is closed. It blocks for the lifetime of the stream.
func (t *SSETransport) Serve(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported: response writer is not a flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The endpoint event tells the client where to post follow-up messages.
	fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", t.messagePath, t.id)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client went away
			t.logger.Debug("stream client disconnected")
			_ = t.Close()
			return nil

		case <-t.done:
			return nil

		case msg := <-t.outgoing:
			data, err := json.Marshal(msg)
			if err != nil {
				t.logger.Warn("failed to marshal outgoing message", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Send pushes a server-to-client message over the open stream.
// Returns ErrTransportClosed once the transport has shut down.
func (t *SSETransport) Send(msg any) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.outgoing <- msg:
		return nil
	case <-t.done:
		return ErrTransportClosed
	}
}

// HandleMessage accepts a posted protocol message for this session.
// Structurally invalid payloads are answered directly with 400; accepted
// messages are answered 202 and dispatched to the bound handler, whose
// response is pushed over the stream. An error return means nothing was
// written to w.
func (t *SSETransport) HandleMessage(w http.ResponseWriter, r *http.Request) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()
	if handler == nil {
		return ErrNoHandler
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageSize+1))
	if err != nil {
		return fmt.Errorf("reading message body: %w", err)
	}
	if int64(len(body)) > MaxMessageSize {
		return errors.New("message body too large")
	}

	if !json.Valid(body) {
		http.Error(w, "Invalid message: not valid JSON", http.StatusBadRequest)
		return nil
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))

	// Protocol handling continues after the POST returns; the JSON-RPC
	// response travels over the SSE stream, not this response.
	go t.dispatch(body)

	return nil
}

// dispatch runs the bound handler for one message and pushes its response.
func (t *SSETransport) dispatch(body []byte) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	resp, err := handler.HandleMessage(context.Background(), t.id, body)
	if err != nil {
		t.logger.Warn("message dispatch failed", "error", err)
		return
	}
	if resp == nil {
		return
	}
	if err := t.Send(resp); err != nil {
		t.logger.Debug("dropping response for closed transport", "error", err)
	}
}

// Close tears the stream down. The first call wins: it stops the Serve loop
// and fires the OnClose hook; later calls are no-ops.
func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		t.mu.RLock()
		onClose := t.onClose
		t.mu.RUnlock()
		if onClose != nil {
			onClose()
		}
	})
	return nil
}
