// ABOUTME: Tests for catalog aggregation covering metadata loading, the
// ABOUTME: allow-list, action tool naming, and the feature-flagged proxy tool.

package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIntegration drops one integration metadata file into dir.
func writeIntegration(t *testing.T, dir string, integ Integration) {
	t.Helper()
	data, err := json.Marshal(integ)
	require.NoError(t, err)
	path := filepath.Join(dir, integ.Name+".json")
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func sampleIntegration(name, baseURL string) Integration {
	return Integration{
		Name:        name,
		Title:       "Sample " + name,
		Description: "A **sample** integration for tests.",
		BaseURL:     baseURL,
		Actions: []Action{
			{
				Name:        "get_item",
				Title:       "Get item",
				Method:      "GET",
				Path:        "/items/{id}",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}}}`),
			},
			{
				Name:   "create_item",
				Title:  "Create item",
				Method: "POST",
				Path:   "/items",
			},
		},
	}
}

func TestAggregateEmptySources(t *testing.T) {
	catalog, err := Aggregate(AggregateConfig{})
	require.NoError(t, err)

	assert.Equal(t, 0, catalog.ToolCount())
	assert.Equal(t, 0, catalog.IntegrationCount())
}

func TestAggregateLoadsIntegrations(t *testing.T) {
	dir := t.TempDir()
	writeIntegration(t, dir, sampleIntegration("widgets", "https://widgets.example.com"))
	writeIntegration(t, dir, sampleIntegration("gadgets", "https://gadgets.example.com"))

	catalog, err := Aggregate(AggregateConfig{IntegrationsDir: dir})
	require.NoError(t, err)

	assert.Equal(t, 2, catalog.IntegrationCount())
	assert.Equal(t, 4, catalog.ToolCount())

	// Tool names are integration-prefixed to stay unique across integrations.
	_, ok := catalog.Tools().Get("widgets_get_item")
	assert.True(t, ok)
	_, ok = catalog.Tools().Get("gadgets_create_item")
	assert.True(t, ok)

	integ, ok := catalog.Integration("widgets")
	require.True(t, ok)
	assert.Equal(t, "Sample widgets", integ.Title)
}

func TestAggregateAllowList(t *testing.T) {
	dir := t.TempDir()
	writeIntegration(t, dir, sampleIntegration("widgets", "https://widgets.example.com"))
	writeIntegration(t, dir, sampleIntegration("gadgets", "https://gadgets.example.com"))

	catalog, err := Aggregate(AggregateConfig{
		IntegrationsDir: dir,
		Allowed:         []string{"widgets"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.IntegrationCount())
	_, ok := catalog.Integration("gadgets")
	assert.False(t, ok)
	_, ok = catalog.Tools().Get("gadgets_get_item")
	assert.False(t, ok)
}

func TestAggregateProxyFlag(t *testing.T) {
	catalog, err := Aggregate(AggregateConfig{EnableProxy: true})
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.ToolCount())
	_, ok := catalog.Tools().Get("http_request")
	assert.True(t, ok)
}

func TestAggregateRejectsNamelessIntegration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"No name"}`), 0644))

	_, err := Aggregate(AggregateConfig{IntegrationsDir: dir})
	assert.Error(t, err)
}

func TestAggregateRejectsActionsWithoutBaseURL(t *testing.T) {
	dir := t.TempDir()
	integ := sampleIntegration("widgets", "")
	writeIntegration(t, dir, integ)

	_, err := Aggregate(AggregateConfig{IntegrationsDir: dir})
	assert.Error(t, err)
}

func TestAggregateSkipsNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	writeIntegration(t, dir, sampleIntegration("widgets", "https://widgets.example.com"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# notes"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0755))

	catalog, err := Aggregate(AggregateConfig{IntegrationsDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.IntegrationCount())
}

func TestActionToolProxiesCall(t *testing.T) {
	var gotPath, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"id":"42","name":"widget"}`))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	integ := sampleIntegration("widgets", upstream.URL)
	integ.Actions[0].InputSchema = json.RawMessage(`{"type":"object"}`)
	writeIntegration(t, dir, integ)

	catalog, err := Aggregate(AggregateConfig{
		IntegrationsDir: dir,
		HTTPClient:      upstream.Client(),
	})
	require.NoError(t, err)

	tool, ok := catalog.Tools().Get("widgets_get_item")
	require.True(t, ok)

	out, err := tool.Handler(context.Background(), json.RawMessage(`{"id":"42","verbose":"true"}`))
	require.NoError(t, err)

	// {id} came from the path template; leftover args became query params.
	assert.Equal(t, "/items/42", gotPath)
	assert.Equal(t, "verbose=true", gotQuery)
	assert.Contains(t, out, `"name":"widget"`)
}

func TestActionToolPostSendsJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	writeIntegration(t, dir, sampleIntegration("widgets", upstream.URL))

	catalog, err := Aggregate(AggregateConfig{
		IntegrationsDir: dir,
		HTTPClient:      upstream.Client(),
	})
	require.NoError(t, err)

	tool, ok := catalog.Tools().Get("widgets_create_item")
	require.True(t, ok)

	_, err = tool.Handler(context.Background(), json.RawMessage(`{"name":"sprocket"}`))
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "sprocket", gotBody["name"])
}

func TestActionToolUpstreamErrorSurfaces(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer upstream.Close()

	dir := t.TempDir()
	writeIntegration(t, dir, sampleIntegration("widgets", upstream.URL))

	catalog, err := Aggregate(AggregateConfig{
		IntegrationsDir: dir,
		HTTPClient:      upstream.Client(),
	})
	require.NoError(t, err)

	tool, _ := catalog.Tools().Get("widgets_get_item")
	_, err = tool.Handler(context.Background(), json.RawMessage(`{"id":"1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSubstitutePathParams(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		params        map[string]any
		wantPath      string
		wantRemaining []string
	}{
		{
			name:     "single placeholder",
			path:     "/items/{id}",
			params:   map[string]any{"id": "42"},
			wantPath: "/items/42",
		},
		{
			name:          "leftover params",
			path:          "/items/{id}",
			params:        map[string]any{"id": "42", "verbose": true},
			wantPath:      "/items/42",
			wantRemaining: []string{"verbose"},
		},
		{
			name:     "escaped value",
			path:     "/files/{name}",
			params:   map[string]any{"name": "a/b c"},
			wantPath: "/files/a%2Fb%20c",
		},
		{
			name:          "no placeholders",
			path:          "/items",
			params:        map[string]any{"q": "x"},
			wantPath:      "/items",
			wantRemaining: []string{"q"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPath, remaining := substitutePathParams(tt.path, tt.params)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Len(t, remaining, len(tt.wantRemaining))
			for _, k := range tt.wantRemaining {
				assert.Contains(t, remaining, k)
			}
		})
	}
}

func TestProxyTool(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	defer upstream.Close()

	tool := ProxyTool(upstream.Client(), slog.Default())
	require.Equal(t, "http_request", tool.Name)

	args, _ := json.Marshal(map[string]any{
		"method":  "POST",
		"url":     upstream.URL,
		"headers": map[string]string{"X-Api-Key": "secret"},
		"body":    "hello",
	})
	out, err := tool.Handler(context.Background(), args)
	require.NoError(t, err)

	var result struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, http.StatusTeapot, result.Status)
	assert.Equal(t, "short and stout", result.Body)
}

func TestProxyToolRequiresURL(t *testing.T) {
	tool := ProxyTool(http.DefaultClient, slog.Default())
	_, err := tool.Handler(context.Background(), json.RawMessage(`{"method":"GET"}`))
	assert.Error(t, err)
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	_, err := NewSet([]*Tool{
		{Name: "dup", Handler: func(context.Context, json.RawMessage) (string, error) { return "", nil }},
		{Name: "dup", Handler: func(context.Context, json.RawMessage) (string, error) { return "", nil }},
	})
	assert.Error(t, err)
}

func TestNewSetRejectsEmptyName(t *testing.T) {
	_, err := NewSet([]*Tool{{Name: ""}})
	assert.Error(t, err)
}
