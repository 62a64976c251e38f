// ABOUTME: Builds the startup tool catalog from integration metadata files.
// ABOUTME: Applies the allow-list and optional feature-flagged tool sources.

package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Integration describes one external API the gateway can expose actions for.
// Loaded from JSON metadata files; the description is markdown.
type Integration struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	BaseURL     string   `json:"baseUrl"`
	Actions     []Action `json:"actions"`
}

// Action is one callable operation derived from an integration's API description.
type Action struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// AggregateConfig controls which tool sources contribute to the catalog.
type AggregateConfig struct {
	// IntegrationsDir holds *.json integration metadata files. Empty means
	// no integration tools.
	IntegrationsDir string

	// Allowed restricts which integration names are exposed. Empty allows all.
	Allowed []string

	// EnableProxy adds the generic http_request tool.
	EnableProxy bool

	// HTTPClient is used by action and proxy handlers. Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Catalog is the immutable product of aggregation: the tool set the protocol
// server advertises plus the integrations it was derived from. Built once at
// startup and never re-queried.
type Catalog struct {
	tools        *Set
	integrations map[string]*Integration
	order        []string
}

// Tools returns the advertised tool set.
func (c *Catalog) Tools() *Set {
	return c.tools
}

// Integration looks up an integration by name. Used by the setup page.
func (c *Catalog) Integration(name string) (*Integration, bool) {
	i, ok := c.integrations[name]
	return i, ok
}

// IntegrationCount returns the number of exposed integrations.
func (c *Catalog) IntegrationCount() int {
	return len(c.order)
}

// ToolCount returns the number of advertised tools.
func (c *Catalog) ToolCount() int {
	return c.tools.Len()
}

// Aggregate builds the tool catalog from all configured sources.
func Aggregate(cfg AggregateConfig) (*Catalog, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var list []*Tool
	catalog := &Catalog{
		integrations: make(map[string]*Integration),
	}

	if cfg.IntegrationsDir != "" {
		integrations, err := loadIntegrations(cfg.IntegrationsDir)
		if err != nil {
			return nil, fmt.Errorf("loading integrations: %w", err)
		}

		allowed := allowSet(cfg.Allowed)
		for _, integ := range integrations {
			if allowed != nil {
				if _, ok := allowed[integ.Name]; !ok {
					logger.Debug("integration not in allow-list, skipping", "integration", integ.Name)
					continue
				}
			}

			catalog.integrations[integ.Name] = integ
			catalog.order = append(catalog.order, integ.Name)

			for i := range integ.Actions {
				tool, err := actionTool(integ, &integ.Actions[i], client, logger)
				if err != nil {
					return nil, fmt.Errorf("integration %s action %s: %w", integ.Name, integ.Actions[i].Name, err)
				}
				list = append(list, tool)
			}
			logger.Info("integration loaded",
				"integration", integ.Name,
				"actions", len(integ.Actions),
			)
		}
	}

	if cfg.EnableProxy {
		list = append(list, ProxyTool(client, logger))
		logger.Info("generic proxy tool enabled")
	}

	set, err := NewSet(list)
	if err != nil {
		return nil, err
	}
	catalog.tools = set

	logger.Info("tool catalog built",
		"integrations", catalog.IntegrationCount(),
		"tools", catalog.ToolCount(),
	)
	return catalog, nil
}

// loadIntegrations reads every *.json file in dir as an Integration.
func loadIntegrations(dir string) ([]*Integration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading integrations dir: %w", err)
	}

	var out []*Integration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		var integ Integration
		if err := json.Unmarshal(data, &integ); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if integ.Name == "" {
			return nil, fmt.Errorf("%s: integration name is required", path)
		}
		if integ.BaseURL == "" && len(integ.Actions) > 0 {
			return nil, fmt.Errorf("%s: baseUrl is required when actions are defined", path)
		}
		out = append(out, &integ)
	}
	return out, nil
}

// allowSet converts the allow-list into a lookup set; nil means allow all.
func allowSet(allowed []string) map[string]struct{} {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	return set
}
