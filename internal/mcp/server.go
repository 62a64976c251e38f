// ABOUTME: Shared MCP protocol server dispatching JSON-RPC messages per session.
// ABOUTME: Handles initialize, ping, tools/list, and tools/call against a fixed tool set.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/conduit-gateway/internal/session"
	"github.com/2389/conduit-gateway/internal/tools"
)

// protocolVersion is the MCP protocol revision advertised in initialize responses.
const protocolVersion = "2024-11-05"

// ErrServerClosed indicates a message arrived after the server shut down.
var ErrServerClosed = errors.New("mcp server closed")

// Config holds configuration for the protocol server.
type Config struct {
	Tools   *tools.Set
	Name    string
	Version string
	Logger  *slog.Logger
}

// Server is the shared protocol instance every session transport binds to.
// The tool set is supplied once at construction and never re-queried.
type Server struct {
	tools   *tools.Set
	name    string
	version string
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewServer creates a protocol server over the given tool set.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool set is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "conduit-gateway"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		tools:   cfg.Tools,
		name:    name,
		version: version,
		logger:  logger,
	}, nil
}

// Connect binds a transport to this server so messages posted for its
// session are dispatched here.
func (s *Server) Connect(t *session.SSETransport) {
	t.Bind(s)
}

// Close makes the server refuse further messages. Idempotent.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// HandleMessage implements session.Handler. It processes one JSON-RPC message
// and returns the response to push over the session's stream, or nil for
// notifications.
func (s *Server) HandleMessage(ctx context.Context, sessionID string, body []byte) (any, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrServerClosed
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errorResponse(nil, JSONRPCParseError, "invalid JSON"), nil
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version"), nil
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	s.logger.Debug("protocol message",
		"method", req.Method,
		"session_id", sessionID,
		"is_notification", isNotification,
	)

	if isNotification {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req), nil
	case "ping":
		return resultResponse(req.ID, map[string]any{}), nil
	case "tools/list":
		return s.handleToolsList(req), nil
	case "tools/call":
		return s.handleToolsCall(ctx, req), nil
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found"), nil
	}
}

// handleInitialize answers the MCP initialize handshake.
func (s *Server) handleInitialize(req JSONRPCRequest) *JSONRPCResponse {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	}
	return resultResponse(req.ID, result)
}

// handleToolsList advertises the aggregated tool catalog.
func (s *Server) handleToolsList(req JSONRPCRequest) *JSONRPCResponse {
	list := s.tools.List()
	result := ListToolsResult{
		Tools: make([]ToolInfo, len(list)),
	}
	for i, tool := range list {
		result.Tools[i] = ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}
	}

	s.logger.Debug("tools/list", "count", len(list))
	return resultResponse(req.ID, result)
}

// handleToolsCall executes one tool invocation.
func (s *Server) handleToolsCall(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required")
	}

	tool, ok := s.tools.Get(params.Name)
	if !ok {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool not found")
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	output, err := tool.Handler(ctx, args)
	if err != nil {
		s.logger.Warn("tool execution failed",
			"tool_name", params.Name,
			"error", err,
		)
		// Tool failures are reported in-band so the client can show them
		return resultResponse(req.ID, CallToolResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}

	s.logger.Debug("tools/call complete", "tool_name", params.Name)
	return resultResponse(req.ID, CallToolResult{
		Content: []Content{{Type: "text", Text: output}},
	})
}

// resultResponse builds a successful JSON-RPC response.
func resultResponse(id json.RawMessage, result any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// errorResponse builds a JSON-RPC error response.
func errorResponse(id json.RawMessage, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
}
