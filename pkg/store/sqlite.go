package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"globerun/pkg/db"
	"globerun/pkg/model"
)

// SQLiteStore implements Store backed by the sqlite database.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a store on top of an initialized database.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

// GetCache returns a cached value by key.
func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("Cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

// SetCache stores a value by key, replacing any previous entry.
func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cache (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = CURRENT_TIMESTAMP",
		key, val)
	if err != nil {
		return fmt.Errorf("failed to write cache %s: %w", key, err)
	}
	return nil
}

// SaveScenes replaces the persisted registry snapshot.
func (s *SQLiteStore) SaveScenes(ctx context.Context, scenes []model.Scene) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin scene save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM scene"); err != nil {
		return fmt.Errorf("failed to clear scenes: %w", err)
	}

	for i, sc := range scenes {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO scene (id, file, second_file, lat, lng, heading, note, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			sc.ID, sc.AssetRef, sc.SecondaryAssetRef, sc.Center.Lat, sc.Center.Lng, sc.Heading, sc.Note, i)
		if err != nil {
			return fmt.Errorf("failed to save scene %s: %w", sc.ID, err)
		}
	}

	return tx.Commit()
}

// ListScenes returns the persisted registry snapshot in registry order.
func (s *SQLiteStore) ListScenes(ctx context.Context) ([]model.Scene, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, file, second_file, lat, lng, heading, note FROM scene ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []model.Scene
	for rows.Next() {
		var sc model.Scene
		if err := rows.Scan(&sc.ID, &sc.AssetRef, &sc.SecondaryAssetRef,
			&sc.Center.Lat, &sc.Center.Lng, &sc.Heading, &sc.Note); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, sc)
	}
	return scenes, rows.Err()
}

// GetState returns a state value by key.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

// SetState stores a state value by key.
func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, val)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

// DeleteState removes a state value by key.
func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM state WHERE key = ?", key)
	return err
}
