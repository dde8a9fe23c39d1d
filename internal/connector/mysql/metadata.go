package mysql

import (
	"context"
	"fmt"

	"github.com/dashprobe/dashprobe/internal/model"
)

type fkRow struct {
	ConstraintName   string `db:"CONSTRAINT_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
	DeleteRule       string `db:"DELETE_RULE"`
	UpdateRule       string `db:"UPDATE_RULE"`
}

// PrimaryKey returns the primary key columns of table in ordinal order.
func (c *MySQLConnector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	const q = `SELECT COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION`

	var cols []string
	if err := c.db.SelectContext(ctx, &cols, q, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("primary key of %q: %w", table, err)
	}
	return cols, nil
}

// ForeignKeys returns the foreign keys declared on table.
func (c *MySQLConnector) ForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error) {
	const q = `SELECT
			kcu.CONSTRAINT_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME,
			rc.DELETE_RULE,
			rc.UPDATE_RULE
		FROM information_schema.KEY_COLUMN_USAGE kcu
		JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
			ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
			AND kcu.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA
		WHERE kcu.TABLE_SCHEMA = ?
			AND kcu.TABLE_NAME = ?
			AND kcu.REFERENCED_TABLE_NAME IS NOT NULL`

	var rows []fkRow
	if err := c.db.SelectContext(ctx, &rows, q, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("foreign keys of %q: %w", table, err)
	}

	fks := make([]model.ForeignKey, 0, len(rows))
	for _, r := range rows {
		fks = append(fks, model.ForeignKey{
			Name:             r.ConstraintName,
			ColumnName:       r.ColumnName,
			ReferencedTable:  r.ReferencedTable,
			ReferencedColumn: r.ReferencedColumn,
			OnDelete:         r.DeleteRule,
			OnUpdate:         r.UpdateRule,
		})
	}
	return fks, nil
}
