package query

import (
	"fmt"
	"strings"
)

// LimitStyle selects how a dialect restricts the number of returned rows.
type LimitStyle int

const (
	// LimitSuffix appends "LIMIT n" (PostgreSQL, MySQL, SQLite).
	LimitSuffix LimitStyle = iota
	// LimitTop prefixes the select list with "TOP n" (SQL Server).
	LimitTop
)

// Dialect is the part of a database connector the builders need.
type Dialect interface {
	QuoteIdentifier(name string) string
	ParameterPlaceholder(index int) string
	LimitStyle() LimitStyle
	SchemaName() string
}

// Table returns the quoted, schema-qualified name of table.
func Table(d Dialect, table string) string {
	if s := d.SchemaName(); s != "" {
		return d.QuoteIdentifier(s) + "." + d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(table)
}

// selectStmt assembles "SELECT <cols> FROM <from> [WHERE <where>]" with an
// optional row limit in the dialect's style.
func selectStmt(d Dialect, cols, from, where string, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if limit > 0 && d.LimitStyle() == LimitTop {
		fmt.Fprintf(&b, "TOP %d ", limit)
	}
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(from)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if limit > 0 && d.LimitStyle() == LimitSuffix {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

// BuildCount returns a count-only existence query for table.
func BuildCount(d Dialect, table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("table: %w", err)
	}
	return selectStmt(d, "COUNT(*)", Table(d, table), "", 0), nil
}

// BuildCountEqual returns a count of the rows where column equals the
// first bind parameter.
func BuildCountEqual(d Dialect, table, column string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("table: %w", err)
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("column: %w", err)
	}
	where := d.QuoteIdentifier(column) + " = " + d.ParameterPlaceholder(1)
	return selectStmt(d, "COUNT(*)", Table(d, table), where, 0), nil
}

// BuildSelectColumns returns a selection of the given columns, limited to
// limit rows.
func BuildSelectColumns(d Dialect, table string, columns []string, limit int) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("table: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		if err := ValidateIdentifier(col); err != nil {
			return "", fmt.Errorf("column: %w", err)
		}
		quoted[i] = d.QuoteIdentifier(col)
	}
	return selectStmt(d, strings.Join(quoted, ", "), Table(d, table), "", limit), nil
}

// BuildSampleKey returns a query for one non-null value of column in table.
func BuildSampleKey(d Dialect, table, column string) (string, error) {
	if err := ValidateIdentifiers(table, column); err != nil {
		return "", err
	}
	col := d.QuoteIdentifier(column)
	return selectStmt(d, col, Table(d, table), col+" IS NOT NULL", 1), nil
}

// BuildLookup returns a fetch-by-key query: the key column of the row whose
// key equals the first bind parameter.
func BuildLookup(d Dialect, table, keyColumn string) (string, error) {
	if err := ValidateIdentifiers(table, keyColumn); err != nil {
		return "", err
	}
	col := d.QuoteIdentifier(keyColumn)
	return selectStmt(d, col, Table(d, table), col+" = "+d.ParameterPlaceholder(1), 1), nil
}

// JoinSpec describes a child-to-parent join through a foreign key column.
type JoinSpec struct {
	Child      string
	ForeignKey string
	Parent     string
	ParentKey  string
}

// BuildJoin returns a query that resolves the child row whose foreign key
// equals the first bind parameter together with its parent. The parent
// side is a LEFT JOIN, so a dangling reference yields a NULL parent key
// rather than no row.
func BuildJoin(d Dialect, j JoinSpec) (string, error) {
	if err := ValidateIdentifiers(j.Child, j.ForeignKey, j.Parent, j.ParentKey); err != nil {
		return "", err
	}
	fk := "c." + d.QuoteIdentifier(j.ForeignKey)
	pk := "p." + d.QuoteIdentifier(j.ParentKey)
	cols := fk + ", " + pk
	from := Table(d, j.Child) + " c LEFT JOIN " + Table(d, j.Parent) + " p ON " + fk + " = " + pk
	return selectStmt(d, cols, from, fk+" = "+d.ParameterPlaceholder(1), 1), nil
}
