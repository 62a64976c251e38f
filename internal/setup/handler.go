// ABOUTME: HTTP handlers for the integration setup page and setup token API.
// ABOUTME: Resolves access token records, verifies signatures, renders the page.

package setup

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/conduit-gateway/internal/auth"
	"github.com/2389/conduit-gateway/internal/tools"
)

//go:embed templates/setup.html
var templateFS embed.FS

// setupTokenTTL bounds how long an issued setup link stays valid.
const setupTokenTTL = 24 * time.Hour

// Payload is the token content embedded into the setup page for
// client-side bootstrap.
type Payload struct {
	ProjectID       string `json:"projectId"`
	LoginToken      string `json:"loginToken"`
	IntegrationName string `json:"integrationName"`
}

// Handler serves the setup page and the token-minting API.
type Handler struct {
	store    *TokenStore
	verifier *auth.JWTVerifier
	catalog  *tools.Catalog
	baseURL  string
	logger   *slog.Logger
	tmpl     *template.Template
}

// NewHandler creates a setup handler.
func NewHandler(store *TokenStore, verifier *auth.JWTVerifier, catalog *tools.Catalog, baseURL string, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/setup.html")
	if err != nil {
		return nil, fmt.Errorf("parsing setup template: %w", err)
	}
	return &Handler{
		store:    store,
		verifier: verifier,
		catalog:  catalog,
		baseURL:  baseURL,
		logger:   logger.With("component", "setup"),
		tmpl:     tmpl,
	}, nil
}

// RegisterRoutes registers the setup endpoints on the given mux.
// The token API handler should be wrapped with bearer auth by the caller.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, withAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("/setup", h.HandleSetupPage)
	mux.Handle("/api/setup-tokens", withAuth(http.HandlerFunc(h.HandleCreateToken)))
}

// HandleSetupPage serves GET /setup?token=<tokenId>.
// Any missing, unknown, or unverifiable token yields 400.
func (h *Handler) HandleSetupPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	tokenID := r.URL.Query().Get("token")
	if tokenID == "" {
		http.Error(w, "missing token parameter", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Get(r.Context(), tokenID)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			h.logger.Warn("access token lookup failed", "token_id", tokenID, "error", err)
		}
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}

	claims, err := h.verifier.VerifyClaims(rec.Token)
	if err != nil {
		h.logger.Warn("setup token failed verification", "token_id", tokenID, "error", err)
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}

	payload := Payload{
		ProjectID:       stringClaim(claims, "projectId"),
		LoginToken:      stringClaim(claims, "loginToken"),
		IntegrationName: stringClaim(claims, "integrationName"),
	}
	if payload.ProjectID == "" || payload.IntegrationName == "" {
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}

	title := payload.IntegrationName
	var descriptionHTML template.HTML
	if integ, ok := h.catalog.Integration(payload.IntegrationName); ok {
		if integ.Title != "" {
			title = integ.Title
		}
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(integ.Description), &buf); err != nil {
			h.logger.Warn("rendering integration description failed", "integration", integ.Name, "error", err)
		} else {
			descriptionHTML = template.HTML(buf.String())
		}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = h.tmpl.Execute(w, map[string]any{
		"Title":           title,
		"DescriptionHTML": descriptionHTML,
		"PayloadJSON":     template.JS(payloadJSON),
	})
	if err != nil {
		h.logger.Warn("rendering setup page failed", "error", err)
	}
}

// createTokenRequest is the body for POST /api/setup-tokens.
type createTokenRequest struct {
	ProjectID       string `json:"projectId"`
	LoginToken      string `json:"loginToken"`
	IntegrationName string `json:"integrationName"`
}

// HandleCreateToken mints a setup token, stores it, and returns the setup URL.
func (h *Handler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if req.ProjectID == "" || req.IntegrationName == "" {
		http.Error(w, `{"error":"projectId and integrationName are required"}`, http.StatusBadRequest)
		return
	}
	if _, ok := h.catalog.Integration(req.IntegrationName); !ok {
		http.Error(w, `{"error":"unknown integration"}`, http.StatusBadRequest)
		return
	}

	token, err := h.verifier.SignClaims(map[string]any{
		"projectId":       req.ProjectID,
		"loginToken":      req.LoginToken,
		"integrationName": req.IntegrationName,
	}, setupTokenTTL)
	if err != nil {
		http.Error(w, `{"error":"signing token failed"}`, http.StatusInternalServerError)
		return
	}

	id, err := h.store.Create(r.Context(), token)
	if err != nil {
		h.logger.Error("storing setup token failed", "error", err)
		http.Error(w, `{"error":"storing token failed"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("setup token issued",
		"token_id", id,
		"integration", req.IntegrationName,
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"tokenId":  id,
		"setupUrl": h.baseURL + "/setup?token=" + id,
	})
}

// stringClaim fetches a string claim, returning "" for absent or mistyped values.
func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
