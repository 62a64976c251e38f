// ABOUTME: Tool and tool-set types advertised by the protocol server.
// ABOUTME: The set is built once at startup and immutable afterwards.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// HandlerFunc executes a tool call and returns its textual output.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is one callable action exposed over the protocol.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     HandlerFunc
}

// Set is an immutable collection of tools with name lookup.
type Set struct {
	tools  []*Tool
	byName map[string]*Tool
}

// NewSet builds a set from the given tools. Duplicate names are rejected
// so a misconfigured integration cannot silently shadow another's action.
func NewSet(list []*Tool) (*Set, error) {
	byName := make(map[string]*Tool, len(list))
	for _, t := range list {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := byName[t.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Name)
		}
		byName[t.Name] = t
	}
	return &Set{tools: list, byName: byName}, nil
}

// List returns the tools in registration order.
func (s *Set) List() []*Tool {
	return s.tools
}

// Get retrieves a tool by name.
func (s *Set) Get(name string) (*Tool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Len returns the number of tools in the set.
func (s *Set) Len() int {
	return len(s.tools)
}
