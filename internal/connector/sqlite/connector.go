// Package sqlite connects the probe to SQLite files. Mock mode points the
// dashboard at a local SQLite copy of the dataset, and tests use it as a
// stand-in backend.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/query"
)

// SQLiteConnector implements connector.Connector for SQLite databases.
type SQLiteConnector struct {
	db         *sqlx.DB
	schemaName string // always "main" unless attached databases are used
}

// New creates a new SQLiteConnector with default settings.
func New() connector.Connector {
	return &SQLiteConnector{schemaName: "main"}
}

// Connect opens the SQLite database file named by the DSN. Query parameters
// such as ?_pragma=busy_timeout(5000) are passed through to the driver.
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("sqlite", cfg.DSN)
	if err != nil {
		return fmt.Errorf("sqlite connect: %w", err)
	}
	connector.ConfigurePool(db, cfg)

	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}

	c.db = db
	return nil
}

// Disconnect closes the database connection.
func (c *SQLiteConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *SQLiteConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *SQLiteConnector) DB() *sqlx.DB {
	return c.db
}

func (c *SQLiteConnector) DriverName() string { return "sqlite" }

func (c *SQLiteConnector) SchemaName() string { return c.schemaName }

// QuoteIdentifier wraps a SQL identifier in backticks, escaping any
// embedded backticks. SQLite reads a double-quoted name that matches no
// column as a string literal; a backticked one is always an identifier.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// ParameterPlaceholder returns "?"; SQLite binds positionally.
func (c *SQLiteConnector) ParameterPlaceholder(_ int) string {
	return "?"
}

func (c *SQLiteConnector) LimitStyle() query.LimitStyle { return query.LimitSuffix }
