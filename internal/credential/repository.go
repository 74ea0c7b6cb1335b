package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKey is an issued Glue Home API key.
type APIKey struct {
	ID        string
	Username  string
	KeyName   string
	Key       string
	Host      string
	CreatedAt time.Time
}

// Repository persists issued API keys.
type Repository interface {
	Get(ctx context.Context, username string) (*APIKey, error)
	Save(ctx context.Context, key *APIKey) error
	Delete(ctx context.Context, username string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a SQLite-backed key repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the key stored for username, or ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, username string) (*APIKey, error) {
	var k APIKey
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, key_name, api_key, host, created_at
		 FROM api_keys WHERE username = ?`, username,
	).Scan(&k.ID, &k.Username, &k.KeyName, &k.Key, &k.Host, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting api key: %w", err)
	}

	k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &k, nil
}

// Save stores key, replacing any key already held for the same username.
// The ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Save(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, username, key_name, api_key, host, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
		   id = excluded.id,
		   key_name = excluded.key_name,
		   api_key = excluded.api_key,
		   host = excluded.host,
		   created_at = excluded.created_at`,
		key.ID, key.Username, key.KeyName, key.Key, key.Host,
		key.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving api key: %w", err)
	}
	return nil
}

// Delete removes the key stored for username. Deleting a missing key is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, username string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM api_keys WHERE username = ?", username); err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	return nil
}
