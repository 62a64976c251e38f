// ABOUTME: Configuration loading and parsing for conduit-gateway
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Runtime environments recognized in runtime.environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config represents the complete conduit-gateway configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Tailscale    TailscaleConfig    `yaml:"tailscale"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Auth         AuthConfig         `yaml:"auth"`
	Database     DatabaseConfig     `yaml:"database"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Tools        ToolsConfig        `yaml:"tools"`
	Setup        SetupConfig        `yaml:"setup"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// RuntimeConfig holds runtime environment configuration
type RuntimeConfig struct {
	// Environment is "development" or "production". Development mode accepts
	// the ?user= query parameter on the stream endpoint.
	Environment string `yaml:"environment"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig holds the access token store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IntegrationsConfig holds integration metadata configuration
type IntegrationsConfig struct {
	// Dir contains *.json integration metadata files
	Dir string `yaml:"dir"`
	// Allowed restricts which integration types are exposed; empty allows all
	Allowed []string `yaml:"allowed"`
}

// ToolsConfig holds feature flags for optional tool sources
type ToolsConfig struct {
	EnableProxy bool `yaml:"enable_proxy"`
}

// SetupConfig holds setup page configuration
type SetupConfig struct {
	// BaseURL is the external URL of the gateway, used to build setup links.
	// If not set, it's derived from server.http_addr or the tailscale hostname.
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills unset fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Runtime.Environment == "" {
		c.Runtime.Environment = EnvProduction
	}
}

// IsDevelopment reports whether the gateway runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Runtime.Environment == EnvDevelopment
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Runtime.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("runtime.environment must be %q or %q", EnvDevelopment, EnvProduction)
	}

	// Production requires a real signing secret; development may mint tokens
	// with a generated one.
	if !c.IsDevelopment() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}
