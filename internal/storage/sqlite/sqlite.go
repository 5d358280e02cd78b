package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"valvecloud/internal/tuya"
)

// Store persists the access token and the one-shot device metadata so a
// process restart does not need extra cloud round trips. Pass ":memory:" for
// an ephemeral store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer, and ":memory:" databases are per-connection
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tuya_token (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			access_token TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS device_metadata (
			device_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			model TEXT NOT NULL,
			mac TEXT NOT NULL,
			serial TEXT NOT NULL,
			category TEXT NOT NULL,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			fetched_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetToken returns the stored access token, or nil when none is stored
func (s *Store) GetToken(ctx context.Context) (*tuya.AccessToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT access_token, expires_at FROM tuya_token WHERE id = 1`)

	var token tuya.AccessToken
	if err := row.Scan(&token.Value, &token.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return &token, nil
}

// SaveToken stores the token, replacing any previous one
func (s *Store) SaveToken(ctx context.Context, token *tuya.AccessToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tuya_token (id, access_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		token.Value, token.ExpiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// DeleteToken removes the stored token. Deleting a token that is not there is
// not an error.
func (s *Store) DeleteToken(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tuya_token WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// GetDeviceMetadata returns the cached metadata for deviceID, or nil when
// absent
func (s *Store) GetDeviceMetadata(ctx context.Context, deviceID string) (*tuya.DeviceMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, model, mac, serial, category, product_id, product_name
		FROM device_metadata WHERE device_id = ?`, deviceID)

	meta := tuya.DeviceMetadata{ID: deviceID}
	err := row.Scan(&meta.Name, &meta.Model, &meta.MAC, &meta.Serial,
		&meta.Category, &meta.ProductID, &meta.ProductName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read device metadata: %w", err)
	}
	return &meta, nil
}

// SaveDeviceMetadata caches the one-shot metadata fetch
func (s *Store) SaveDeviceMetadata(ctx context.Context, meta *tuya.DeviceMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_metadata
			(device_id, name, model, mac, serial, category, product_id, product_name, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			model = excluded.model,
			mac = excluded.mac,
			serial = excluded.serial,
			category = excluded.category,
			product_id = excluded.product_id,
			product_name = excluded.product_name,
			fetched_at = excluded.fetched_at`,
		meta.ID, meta.Name, meta.Model, meta.MAC, meta.Serial,
		meta.Category, meta.ProductID, meta.ProductName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save device metadata: %w", err)
	}
	return nil
}

// Ensure Store satisfies the token persistence interface
var _ tuya.TokenStore = (*Store)(nil)
