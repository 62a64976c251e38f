// ABOUTME: Converts one integration action into a callable proxying tool.
// ABOUTME: Substitutes path parameters and maps remaining args to query or body.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseBytes caps how much of an upstream response a tool returns.
const maxResponseBytes = 256 << 10

// defaultInputSchema is used when an action omits its input schema.
var defaultInputSchema = json.RawMessage(`{"type":"object"}`)

// actionTool builds a Tool whose handler proxies the call to the
// integration's HTTP API.
func actionTool(integ *Integration, action *Action, client *http.Client, logger *slog.Logger) (*Tool, error) {
	if action.Name == "" {
		return nil, fmt.Errorf("action name is required")
	}
	method := strings.ToUpper(action.Method)
	if method == "" {
		method = http.MethodGet
	}

	schema := action.InputSchema
	if len(schema) == 0 {
		schema = defaultInputSchema
	}

	description := action.Description
	if description == "" {
		description = action.Title
	}

	name := integ.Name + "_" + action.Name
	return &Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return callAction(ctx, client, logger, integ.BaseURL, method, action.Path, args)
		},
	}, nil
}

// callAction performs one proxied HTTP call for an action invocation.
func callAction(ctx context.Context, client *http.Client, logger *slog.Logger, baseURL, method, path string, args json.RawMessage) (string, error) {
	params := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("parsing arguments: %w", err)
		}
	}

	path, remaining := substitutePathParams(path, params)

	reqURL, err := url.Parse(strings.TrimSuffix(baseURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("building request URL: %w", err)
	}

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		q := reqURL.Query()
		for k, v := range remaining {
			q.Set(k, fmt.Sprint(v))
		}
		reqURL.RawQuery = q.Encode()
	default:
		data, err := json.Marshal(remaining)
		if err != nil {
			return "", fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling integration: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading integration response: %w", err)
	}

	logger.Debug("action call complete",
		"method", method,
		"url", reqURL.String(),
		"status", resp.StatusCode,
	)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("integration returned %d: %s", resp.StatusCode, respBody)
	}
	return string(respBody), nil
}

// substitutePathParams replaces {param} placeholders in path with matching
// argument values and returns the arguments that were not consumed.
func substitutePathParams(path string, params map[string]any) (string, map[string]any) {
	remaining := make(map[string]any, len(params))
	for k, v := range params {
		placeholder := "{" + k + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprint(v)))
			continue
		}
		remaining[k] = v
	}
	return path, remaining
}
