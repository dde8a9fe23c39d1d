package model

import "time"

// BackendConfig is a saved database backend the probe can target by name.
type BackendConfig struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Label     string     `json:"label" db:"label"`
	Driver    string     `json:"driver" db:"driver"` // postgres, mysql, mssql, sqlite
	DSN       string     `json:"dsn,omitempty" db:"dsn"`
	Schema    string     `json:"schema" db:"schema_name"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	Pool      PoolConfig `json:"pool"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// PoolConfig controls the connection pool opened for a backend.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig returns pool limits suited to a short diagnostic run:
// a handful of concurrent probes against one backend.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}
