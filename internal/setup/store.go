// ABOUTME: SQLite-backed store of issued setup access tokens using modernc.org/sqlite
// ABOUTME: Maps opaque token IDs to previously signed tokens, read-only at the boundary

package setup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrTokenNotFound indicates no access token record exists for an ID.
var ErrTokenNotFound = errors.New("access token not found")

// AccessTokenRecord maps an opaque identifier to a previously issued signed token.
type AccessTokenRecord struct {
	ID        string
	Token     string
	CreatedAt time.Time
}

// TokenStore persists access token records in SQLite.
type TokenStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTokenStore opens (or creates) the token database at the given path.
// The schema is automatically created if it doesn't exist. ":memory:" is
// supported for tests.
func NewTokenStore(path string, logger *slog.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "token-store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &TokenStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("token store initialized", "path", path)
	return s, nil
}

// createSchema creates the access token table if it doesn't exist
func (s *TokenStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS access_tokens (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create stores a signed token and returns the opaque ID to hand to clients.
func (s *TokenStore) Create(ctx context.Context, token string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_tokens (id, token, created_at) VALUES (?, ?, ?)`,
		id, token, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting access token: %w", err)
	}

	s.logger.Debug("access token created", "token_id", id)
	return id, nil
}

// Get resolves an access token record by its opaque ID.
func (s *TokenStore) Get(ctx context.Context, id string) (*AccessTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, token, created_at FROM access_tokens WHERE id = ?`, id,
	)

	var rec AccessTokenRecord
	if err := row.Scan(&rec.ID, &rec.Token, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("querying access token: %w", err)
	}
	return &rec, nil
}

// Close releases the underlying database handle.
func (s *TokenStore) Close() error {
	return s.db.Close()
}
