// Package mssql connects the probe to SQL Server.
package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/query"
)

// MSSQLConnector implements connector.Connector for SQL Server databases.
type MSSQLConnector struct {
	db         *sqlx.DB
	schemaName string
}

// New creates a new MSSQLConnector targeting the dbo schema.
func New() connector.Connector {
	return &MSSQLConnector{schemaName: "dbo"}
}

func (c *MSSQLConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("sqlserver", cfg.DSN)
	if err != nil {
		return fmt.Errorf("mssql connect: %w", err)
	}
	connector.ConfigurePool(db, cfg)

	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}

	c.db = db
	return nil
}

// Disconnect closes the database connection pool.
func (c *MSSQLConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *MSSQLConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *MSSQLConnector) DB() *sqlx.DB {
	return c.db
}

func (c *MSSQLConnector) DriverName() string { return "mssql" }

func (c *MSSQLConnector) SchemaName() string { return c.schemaName }

// QuoteIdentifier wraps a SQL identifier in brackets, escaping any
// embedded closing brackets.
func (c *MSSQLConnector) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// ParameterPlaceholder returns a numbered placeholder (@p1, @p2, ...).
func (c *MSSQLConnector) ParameterPlaceholder(index int) string {
	return fmt.Sprintf("@p%d", index)
}

// LimitStyle reports that SQL Server uses SELECT TOP n.
func (c *MSSQLConnector) LimitStyle() query.LimitStyle { return query.LimitTop }
