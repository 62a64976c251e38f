// ABOUTME: Tests for the shared protocol server covering the initialize
// ABOUTME: handshake, tool listing and invocation, notifications, and close.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/2389/conduit-gateway/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	set, err := tools.NewSet([]*tools.Tool{
		{
			Name:        "echo",
			Description: "Echoes its input back",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
			Handler: func(_ context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", err
				}
				return in.Text, nil
			},
		},
		{
			Name:        "always_fails",
			Description: "Fails on every call",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(_ context.Context, _ json.RawMessage) (string, error) {
				return "", errors.New("upstream unavailable")
			},
		},
	})
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}

	srv, err := NewServer(Config{
		Tools:   set,
		Name:    "test-gateway",
		Version: "1.2.3",
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

// call runs one request through the server and returns the typed response.
func call(t *testing.T, srv *Server, body string) *JSONRPCResponse {
	t.Helper()

	resp, err := srv.HandleMessage(context.Background(), "test-session", []byte(body))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if resp == nil {
		return nil
	}
	typed, ok := resp.(*JSONRPCResponse)
	if !ok {
		t.Fatalf("HandleMessage() returned %T, want *JSONRPCResponse", resp)
	}
	return typed
}

func TestNewServerRequiresTools(t *testing.T) {
	_, err := NewServer(Config{})
	if err == nil {
		t.Fatal("NewServer() with nil tool set should fail")
	}
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	if resp.Error != nil {
		t.Fatalf("initialize error = %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("initialize result is %T, want map", resp.Result)
	}
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v, want %s", result["protocolVersion"], protocolVersion)
	}
	info, ok := result["serverInfo"].(map[string]any)
	if !ok {
		t.Fatalf("serverInfo missing from initialize result")
	}
	if info["name"] != "test-gateway" {
		t.Errorf("serverInfo.name = %v, want test-gateway", info["name"])
	}
	if info["version"] != "1.2.3" {
		t.Errorf("serverInfo.version = %v, want 1.2.3", info["version"])
	}
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":"ping-1","method":"ping"}`)
	if resp.Error != nil {
		t.Fatalf("ping error = %v", resp.Error)
	}
	if string(resp.ID) != `"ping-1"` {
		t.Errorf("response ID = %s, want \"ping-1\"", resp.ID)
	}
}

func TestToolsList(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("tools/list error = %v", resp.Error)
	}

	result, ok := resp.Result.(ListToolsResult)
	if !ok {
		t.Fatalf("tools/list result is %T, want ListToolsResult", resp.Result)
	}
	if len(result.Tools) != 2 {
		t.Fatalf("tools/list returned %d tools, want 2", len(result.Tools))
	}

	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
		if len(tool.InputSchema) == 0 {
			t.Errorf("tool %s has empty input schema", tool.Name)
		}
	}
	if !names["echo"] || !names["always_fails"] {
		t.Errorf("tools/list missing expected tools, got %v", names)
	}
}

func TestToolsCall(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hello"}}}`)
	if resp.Error != nil {
		t.Fatalf("tools/call error = %v", resp.Error)
	}

	result, ok := resp.Result.(CallToolResult)
	if !ok {
		t.Fatalf("tools/call result is %T, want CallToolResult", resp.Result)
	}
	if result.IsError {
		t.Error("tools/call result marked as error")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello" {
		t.Errorf("tools/call content = %+v, want single text 'hello'", result.Content)
	}
}

func TestToolsCallFailureIsInBand(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"always_fails","arguments":{}}}`)
	if resp.Error != nil {
		t.Fatalf("tool failure should not be a protocol error, got %v", resp.Error)
	}

	result, ok := resp.Result.(CallToolResult)
	if !ok {
		t.Fatalf("tools/call result is %T, want CallToolResult", resp.Result)
	}
	if !result.IsError {
		t.Error("failed tool call should set isError")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "upstream unavailable" {
		t.Errorf("error content = %+v, want the handler error text", result.Content)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope"}}`)
	if resp.Error == nil {
		t.Fatal("unknown tool should return a protocol error")
	}
	if resp.Error.Code != JSONRPCInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, JSONRPCInvalidParams)
	}
}

func TestToolsCallMissingName(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{}}`)
	if resp.Error == nil || resp.Error.Code != JSONRPCInvalidParams {
		t.Errorf("missing tool name should fail with invalid params, got %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`)
	if resp.Error == nil || resp.Error.Code != JSONRPCMethodNotFound {
		t.Errorf("unknown method should fail with method not found, got %+v", resp.Error)
	}
}

func TestNotificationsProduceNoResponse(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp != nil {
		t.Errorf("notification should produce no response, got %+v", resp)
	}
}

func TestInvalidJSONRPCVersion(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"1.0","id":8,"method":"ping"}`)
	if resp.Error == nil || resp.Error.Code != JSONRPCInvalidRequest {
		t.Errorf("bad version should fail with invalid request, got %+v", resp.Error)
	}
}

func TestMalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	resp := call(t, srv, `{broken`)
	if resp.Error == nil || resp.Error.Code != JSONRPCParseError {
		t.Errorf("malformed JSON should fail with parse error, got %+v", resp.Error)
	}
}

func TestClosedServerRefusesMessages(t *testing.T) {
	srv := newTestServer(t)
	srv.Close()
	srv.Close() // idempotent

	_, err := srv.HandleMessage(context.Background(), "s", []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if !errors.Is(err, ErrServerClosed) {
		t.Errorf("HandleMessage() on closed server error = %v, want ErrServerClosed", err)
	}
}
