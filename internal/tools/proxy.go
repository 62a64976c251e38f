// ABOUTME: Generic HTTP-proxy tool exposed behind a feature flag.
// ABOUTME: Lets a client perform an arbitrary HTTP request through the gateway.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// proxyInputSchema describes the http_request tool's arguments.
var proxyInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"method": {"type": "string", "description": "HTTP method (GET, POST, PUT, PATCH, DELETE)"},
		"url": {"type": "string", "description": "Absolute URL to request"},
		"headers": {"type": "object", "additionalProperties": {"type": "string"}},
		"body": {"type": "string", "description": "Raw request body"}
	},
	"required": ["method", "url"]
}`)

// proxyArgs are the decoded http_request arguments.
type proxyArgs struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// ProxyTool builds the generic http_request tool.
func ProxyTool(client *http.Client, logger *slog.Logger) *Tool {
	return &Tool{
		Name:        "http_request",
		Description: "Perform an arbitrary HTTP request through the gateway and return the response.",
		InputSchema: proxyInputSchema,
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var p proxyArgs
			if err := json.Unmarshal(args, &p); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			if p.URL == "" {
				return "", fmt.Errorf("url is required")
			}
			method := strings.ToUpper(p.Method)
			if method == "" {
				method = http.MethodGet
			}

			var body io.Reader
			if p.Body != "" {
				body = strings.NewReader(p.Body)
			}

			req, err := http.NewRequestWithContext(ctx, method, p.URL, body)
			if err != nil {
				return "", fmt.Errorf("creating request: %w", err)
			}
			for k, v := range p.Headers {
				req.Header.Set(k, v)
			}

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("performing request: %w", err)
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return "", fmt.Errorf("reading response: %w", err)
			}

			logger.Debug("proxy request complete",
				"method", method,
				"url", p.URL,
				"status", resp.StatusCode,
			)

			result := map[string]any{
				"status": resp.StatusCode,
				"body":   string(respBody),
			}
			out, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("encoding result: %w", err)
			}
			return string(out), nil
		},
	}
}
