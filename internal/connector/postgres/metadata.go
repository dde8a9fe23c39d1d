package postgres

import (
	"context"
	"fmt"

	"github.com/dashprobe/dashprobe/internal/model"
)

// fkRow holds one foreign key column mapping from information_schema.
type fkRow struct {
	ConstraintName   string `db:"constraint_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
	DeleteRule       string `db:"delete_rule"`
	UpdateRule       string `db:"update_rule"`
}

// PrimaryKey returns the primary key columns of table in ordinal order.
func (c *PostgresConnector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	const q = `SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`

	var cols []string
	if err := c.db.SelectContext(ctx, &cols, q, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("primary key of %q: %w", table, err)
	}
	return cols, nil
}

// ForeignKeys returns the foreign keys declared on table. These are the
// relationships PostgREST (and so the Supabase client) can embed.
func (c *PostgresConnector) ForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error) {
	const q = `SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.constraint_schema
		JOIN information_schema.referential_constraints rc
			ON tc.constraint_name = rc.constraint_name
			AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2`

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
