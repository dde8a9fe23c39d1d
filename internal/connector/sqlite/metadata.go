package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/dashprobe/dashprobe/internal/model"
)

// pragmaColumn is one row of PRAGMA table_info.
type pragmaColumn struct {
	CID          int            `db:"cid"`
	Name         string         `db:"name"`
	Type         string         `db:"type"`
	NotNull      int            `db:"notnull"`
	DefaultValue sql.NullString `db:"dflt_value"`
	PK           int            `db:"pk"`
}

// pragmaForeignKey is one row of PRAGMA foreign_key_list. "to" is NULL when
// the reference targets the parent's primary key implicitly.
type pragmaForeignKey struct {
	ID       int            `db:"id"`
	Seq      int            `db:"seq"`
	Table    string         `db:"table"`
	From     string         `db:"from"`
	To       sql.NullString `db:"to"`
	OnUpdate string         `db:"on_update"`
	OnDelete string         `db:"on_delete"`
	Match    string         `db:"match"`
}

// PrimaryKey returns the primary key columns of table in key order.
func (c *SQLiteConnector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	var cols []pragmaColumn
	q := fmt.Sprintf("PRAGMA table_info(%s)", c.QuoteIdentifier(table))
	if err := c.db.SelectContext(ctx, &cols, q); err != nil {
		return nil, fmt.Errorf("primary key of %q: %w", table, err)
	}

	var pk []pragmaColumn
	for _, col := range cols {
		if col.PK > 0 {
			pk = append(pk, col)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].PK < pk[j].PK })

	names := make([]string, 0, len(pk))
	for _, col := range pk {
		names = append(names, col.Name)
	}
	return names, nil
}

// ForeignKeys returns the REFERENCES clauses declared on table.
func (c *SQLiteConnector) ForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error) {
	var rows []pragmaForeignKey
	q := fmt.Sprintf("PRAGMA foreign_key_list(%s)", c.QuoteIdentifier(table))
	if err := c.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("foreign keys of %q: %w", table, err)
	}

	fks := make([]model.ForeignKey, 0, len(rows))
	for _, r := range rows {
		to := r.To.String
		if !r.To.Valid || to == "" {
			pk, err := c.PrimaryKey(ctx, r.Table)
			if err == nil && len(pk) > 0 {
				to = pk[0]
			}
		}
		fks = append(fks, model.ForeignKey{
			Name:             fmt.Sprintf("fk_%s_%d", table, r.ID),
			ColumnName:       r.From,
			ReferencedTable:  r.Table,
			ReferencedColumn: to,
			OnDelete:         r.OnDelete,
			OnUpdate:         r.OnUpdate,
		})
	}
	return fks, nil
}
