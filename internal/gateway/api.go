// ABOUTME: Health endpoint reporting process and session statistics.
// ABOUTME: Pure read, no side effects.

package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthResponse is the GET /health body.
type healthResponse struct {
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
	Uptime            string `json:"uptime"`
	Version           string `json:"version"`
	Environment       string `json:"environment"`
	ActiveConnections int    `json:"activeConnections"`
	Integrations      int    `json:"integrations"`
	Tools             int    `json:"tools"`
}

// handleHealth returns gateway status and counters.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Uptime:            time.Since(g.startedAt).Round(time.Second).String(),
		Version:           g.version,
		Environment:       g.config.Runtime.Environment,
		ActiveConnections: g.registry.Count(),
		Integrations:      g.catalog.IntegrationCount(),
		Tools:             g.catalog.ToolCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		g.logger.Warn("failed to encode health response", "error", err)
	}
}
