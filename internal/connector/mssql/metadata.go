package mssql

import (
	"context"
	"fmt"

	"github.com/dashprobe/dashprobe/internal/model"
)

type fkRow struct {
	ConstraintName   string `db:"constraint_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
	DeleteRule       string `db:"delete_rule"`
	UpdateRule       string `db:"update_rule"`
}

// PrimaryKey returns the primary key columns of table in key order.
func (c *MSSQLConnector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	const q = `SELECT c.name
		FROM sys.indexes i
		JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		JOIN sys.tables t ON i.object_id = t.object_id
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE i.is_primary_key = 1 AND s.name = @p1 AND t.name = @p2
		ORDER BY ic.key_ordinal`

	var cols []string
	if err := c.db.SelectContext(ctx, &cols, q, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("primary key of %q: %w", table, err)
	}
	return cols, nil
}

// ForeignKeys returns the foreign keys declared on table.
func (c *MSSQLConnector) ForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error) {
	const q = `SELECT
			fk.name AS constraint_name,
			pc.name AS column_name,
			rt.name AS referenced_table,
			rc.name AS referenced_column,
			fk.delete_referential_action_desc AS delete_rule,
			fk.update_referential_action_desc AS update_rule
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		JOIN sys.tables pt ON fkc.parent_object_id = pt.object_id
		JOIN sys.schemas s ON pt.schema_id = s.schema_id
		JOIN sys.columns pc ON fkc.parent_object_id = pc.object_id AND fkc.parent_column_id = pc.column_id
		JOIN sys.tables rt ON fkc.referenced_object_id = rt.object_id
		JOIN sys.columns rc ON fkc.referenced_object_id = rc.object_id AND fkc.referenced_column_id = rc.column_id
		WHERE s.name = @p1 AND pt.name = @p2`

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
