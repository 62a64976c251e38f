// ABOUTME: Gateway orchestrator that wires the session registry, protocol server,
// ABOUTME: tool catalog, and HTTP surface, and manages their lifecycle.

package gateway

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/conduit-gateway/internal/auth"
	"github.com/2389/conduit-gateway/internal/config"
	"github.com/2389/conduit-gateway/internal/mcp"
	"github.com/2389/conduit-gateway/internal/session"
	"github.com/2389/conduit-gateway/internal/setup"
	"github.com/2389/conduit-gateway/internal/tools"
)

// Gateway orchestrates the conduit-gateway server components.
type Gateway struct {
	config      *config.Config
	registry    *session.Registry
	mcpServer   *mcp.Server
	catalog     *tools.Catalog
	tokenStore  *setup.TokenStore
	verifier    *auth.JWTVerifier
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	version   string
	startedAt time.Time

	shutdownOnce sync.Once
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Gateway, error) {
	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	catalog, err := tools.Aggregate(tools.AggregateConfig{
		IntegrationsDir: cfg.Integrations.Dir,
		Allowed:         cfg.Integrations.Allowed,
		EnableProxy:     cfg.Tools.EnableProxy,
		Logger:          logger.With("component", "tools"),
	})
	if err != nil {
		return nil, fmt.Errorf("aggregating tools: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Tools:   catalog.Tools(),
		Name:    "conduit-gateway",
		Version: version,
		Logger:  logger.With("component", "mcp"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating protocol server: %w", err)
	}

	tokenStore, err := setup.NewTokenStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	gw := &Gateway{
		config:     cfg,
		registry:   session.NewRegistry(logger.With("component", "registry")),
		mcpServer:  mcpServer,
		catalog:    catalog,
		tokenStore: tokenStore,
		verifier:   verifier,
		logger:     logger.With("component", "gateway"),
		version:    version,
		startedAt:  time.Now(),
	}

	setupHandler, err := setup.NewHandler(tokenStore, verifier, catalog, determineBaseURL(cfg), logger)
	if err != nil {
		tokenStore.Close()
		return nil, fmt.Errorf("creating setup handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", gw.handleStream)
	mux.HandleFunc("/messages", gw.handleMessages)
	mux.HandleFunc("/health", gw.handleHealth)
	setupHandler.RegisterRoutes(mux, auth.RequireBearer(verifier))

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// buildVerifier resolves the signing key once at startup. Development mode
// without a configured secret gets an ephemeral random one.
func buildVerifier(cfg *config.Config, logger *slog.Logger) (*auth.JWTVerifier, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("auth.jwt_secret is required in production")
		}
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generating ephemeral secret: %w", err)
		}
		secret = base64.StdEncoding.EncodeToString(raw)
		logger.Warn("no jwt_secret configured - using ephemeral development secret")
	}
	return auth.NewJWTVerifier([]byte(secret))
}

// determineBaseURL resolves the external URL used in setup links.
func determineBaseURL(cfg *config.Config) string {
	if cfg.Setup.BaseURL != "" {
		return cfg.Setup.BaseURL
	}
	if envURL := os.Getenv("CONDUIT_GATEWAY_URL"); envURL != "" {
		return envURL
	}
	if cfg.Tailscale.Enabled {
		if cfg.Tailscale.Funnel {
			return "https://" + cfg.Tailscale.Hostname
		}
		return "http://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Server.HTTPAddr
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	listener, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", listener.Addr().String())
		if err := g.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown closes every active session, the protocol server, and the HTTP
// server. Safe to invoke more than once: a repeat drains an empty registry
// and proceeds.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down, closing all sessions", "active_sessions", g.registry.Count())

	drained := g.registry.Drain()

	// Close every transport concurrently; one slow or failing close must not
	// block the rest, but all attempts are awaited.
	var wg sync.WaitGroup
	for _, sess := range drained {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			if err := sess.Transport.Close(); err != nil {
				g.logger.Warn("session close failed",
					"session_id", sess.ID,
					"error", err,
				)
			}
		}(sess)
	}
	wg.Wait()

	g.mcpServer.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	g.shutdownOnce.Do(func() {
		errs = appendCloseError(errs, "token store close", g.tokenStore.Close())
	})

	g.logger.Info("shutdown complete", "sessions_closed", len(drained))

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupTailscaleListener creates a tsnet server and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir := tsCfg.StateDir
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
		}
		stateDir = filepath.Join(homeDir, ".local", "share", "conduit-gateway", "tailscale")
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey := tsCfg.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return nil, errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	if _, err := g.tsnetServer.Up(ctx); err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	}

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}
