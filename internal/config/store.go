package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dashprobe/dashprobe/internal/model"
)

// Store keeps the CLI's saved backends in a local SQLite file, so a probe
// can target a backend by name instead of repeating its DSN.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (creating if needed) the store under dataDir. Pass an
// empty string for an in-memory store.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "dashprobe.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes; also pins :memory: to one connection

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// backendRow maps 1:1 to the backends table. model.BackendConfig nests
// its pool settings, which sqlx cannot map to flat columns.
type backendRow struct {
	ID                int64     `db:"id"`
	Name              string    `db:"name"`
	Label             string    `db:"label"`
	Driver            string    `db:"driver"`
	DSN               string    `db:"dsn"`
	SchemaName        string    `db:"schema_name"`
	IsActive          bool      `db:"is_active"`
	MaxOpenConns      int       `db:"max_open_conns"`
	MaxIdleConns      int       `db:"max_idle_conns"`
	ConnMaxLifetimeMs int64     `db:"conn_max_lifetime_ms"`
	ConnMaxIdleTimeMs int64     `db:"conn_max_idle_time_ms"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func backendRowFromModel(b *model.BackendConfig) backendRow {
	return backendRow{
		ID:                b.ID,
		Name:              b.Name,
		Label:             b.Label,
		Driver:            b.Driver,
		DSN:               b.DSN,
		SchemaName:        b.Schema,
		IsActive:          b.IsActive,
		MaxOpenConns:      b.Pool.MaxOpenConns,
		MaxIdleConns:      b.Pool.MaxIdleConns,
		ConnMaxLifetimeMs: b.Pool.ConnMaxLifetime.Milliseconds(),
		ConnMaxIdleTimeMs: b.Pool.ConnMaxIdleTime.Milliseconds(),
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func (r backendRow) toModel() model.BackendConfig {
	return model.BackendConfig{
		ID:       r.ID,
		Name:     r.Name,
		Label:    r.Label,
		Driver:   r.Driver,
		DSN:      r.DSN,
		Schema:   r.SchemaName,
		IsActive: r.IsActive,
		Pool: model.PoolConfig{
			MaxOpenConns:    r.MaxOpenConns,
			MaxIdleConns:    r.MaxIdleConns,
			ConnMaxLifetime: time.Duration(r.ConnMaxLifetimeMs) * time.Millisecond,
			ConnMaxIdleTime: time.Duration(r.ConnMaxIdleTimeMs) * time.Millisecond,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CreateBackend saves a new backend. The ID, CreatedAt and UpdatedAt fields
// of b are populated after a successful insert.
func (s *Store) CreateBackend(ctx context.Context, b *model.BackendConfig) error {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	const q = `INSERT INTO backends
		(name, label, driver, dsn, schema_name, is_active,
		 max_open_conns, max_idle_conns, conn_max_lifetime_ms, conn_max_idle_time_ms,
		 created_at, updated_at)
		VALUES
		(:name, :label, :driver, :dsn, :schema_name, :is_active,
		 :max_open_conns, :max_idle_conns, :conn_max_lifetime_ms, :conn_max_idle_time_ms,
		 :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, backendRowFromModel(b))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("backend %q: %w", b.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("insert backend: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get backend id: %w", err)
	}
	b.ID = id
	return nil
}

// GetBackendByName returns a saved backend by its unique name.
func (s *Store) GetBackendByName(ctx context.Context, name string) (*model.BackendConfig, error) {
	var row backendRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM backends WHERE name = ?", name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get backend by name: %w", err)
	}
	b := row.toModel()
	return &b, nil
}

// ListBackends returns every saved backend ordered by name.
func (s *Store) ListBackends(ctx context.Context) ([]model.BackendConfig, error) {
	var rows []backendRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM backends ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list backends: %w", err)
	}

	backends := make([]model.BackendConfig, len(rows))
	for i, r := range rows {
		backends[i] = r.toModel()
	}
	return backends, nil
}

// UpdateBackend overwrites a saved backend, matched by ID. UpdatedAt is
// refreshed automatically.
func (s *Store) UpdateBackend(ctx context.Context, b *model.BackendConfig) error {
	b.UpdatedAt = time.Now().UTC()

	const q = `UPDATE backends SET
		name = :name, label = :label, driver = :driver, dsn = :dsn,
		schema_name = :schema_name, is_active = :is_active,
		max_open_conns = :max_open_conns, max_idle_conns = :max_idle_conns,
		conn_max_lifetime_ms = :conn_max_lifetime_ms, conn_max_idle_time_ms = :conn_max_idle_time_ms,
		updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, backendRowFromModel(b))
	if err != nil {
		return fmt.Errorf("update backend: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update backend rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBackend removes a saved backend by name.
func (s *Store) DeleteBackend(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM backends WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete backend: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete backend rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
