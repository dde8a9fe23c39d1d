// Package probe runs read-only diagnostic queries against a dashboard
// backend: does a table exist, does it have the expected columns, do
// foreign keys resolve, are there duplicate reference rows.
//
// Every operation returns a result value. Backend failures, invalid
// identifiers and driver panics are recorded in the result instead of
// being returned or propagated, so one failing check never stops the rest
// of a run.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/query"
)

// TableResult is the outcome of ProbeTable.
type TableResult struct {
	Table    string `json:"table"`
	Exists   bool   `json:"exists"`
	RowCount *int64 `json:"row_count,omitempty"`
	Error    string `json:"error,omitempty"`
	Kind     Kind   `json:"kind,omitempty"`
}

// ColumnResult is the outcome of ProbeColumns.
type ColumnResult struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Exists  bool     `json:"exists"`
	Error   string   `json:"error,omitempty"`
	Kind    Kind     `json:"kind,omitempty"`
}

// DuplicateResult is the outcome of DetectDuplicateNames.
type DuplicateResult struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Count  int64  `json:"count"`
	Error  string `json:"error,omitempty"`
	Kind   Kind   `json:"kind,omitempty"`
}

// HasDuplicates reports whether more than one row carries the value.
func (r DuplicateResult) HasDuplicates() bool { return r.Count > 1 }

// Prober issues probes over a single backend connection. It holds no
// mutable state and is safe for concurrent use.
type Prober struct {
	conn   connector.Connector
	logger *slog.Logger
}

// NewProber creates a Prober for conn. A nil logger uses slog.Default().
func NewProber(conn connector.Connector, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{conn: conn, logger: logger}
}

// Connector returns the backend the prober queries.
func (p *Prober) Connector() connector.Connector { return p.conn }

// recoverTo turns a panic in the current probe into a recorded error.
// It must be deferred directly.
func (p *Prober) recoverTo(op, table string, errField *string, kind *Kind) {
	if r := recover(); r != nil {
		p.logger.Error("probe panicked",
			"op", op,
			"table", table,
			"panic", r,
			"stack", string(debug.Stack()),
		)
		*errField = fmt.Sprintf("internal error: %v", r)
		*kind = KindQueryFailed
	}
}

// ProbeTable checks that table exists by counting its rows.
func (p *Prober) ProbeTable(ctx context.Context, table string) (res TableResult) {
	res.Table = table
	defer p.recoverTo("table", table, &res.Error, &res.Kind)

	q, err := query.BuildCount(p.conn, table)
	if err != nil {
		res.Error = err.Error()
		res.Kind = KindSchemaMismatch
		return res
	}

	var count int64
	if err := p.conn.DB().GetContext(ctx, &count, q); err != nil {
		res.Error = err.Error()
		res.Kind = Classify(err)
		p.logger.Debug("table probe failed", "table", table, "error", err)
		return res
	}

	res.Exists = true
	res.RowCount = &count
	p.logger.Debug("table probed", "table", table, "rows", count)
	return res
}

// ProbeColumns checks that table has every one of columns by selecting
// them from at most one row. An empty table still passes.
func (p *Prober) ProbeColumns(ctx context.Context, table string, columns []string) (res ColumnResult) {
	res.Table = table
	res.Columns = columns
	defer p.recoverTo("columns", table, &res.Error, &res.Kind)

	q, err := query.BuildSelectColumns(p.conn, table, columns, 1)
	if err != nil {
		res.Error = err.Error()
		res.Kind = KindSchemaMismatch
		return res
	}

	rows, err := p.conn.DB().QueryxContext(ctx, q)
	if err != nil {
		res.Error = err.Error()
		res.Kind = Classify(err)
		p.logger.Debug("column probe failed", "table", table, "columns", columns, "error", err)
		return res
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		res.Error = err.Error()
		res.Kind = Classify(err)
		return res
	}

	res.Exists = true
	p.logger.Debug("columns probed", "table", table, "columns", columns)
	return res
}

// DetectDuplicateNames counts the rows of table whose column equals value
// exactly. A count above one means the reference row was inserted twice.
func (p *Prober) DetectDuplicateNames(ctx context.Context, table, column, value string) (res DuplicateResult) {
	res.Table = table
	res.Column = column
	res.Value = value
	defer p.recoverTo("duplicates", table, &res.Error, &res.Kind)

	v, err := query.SanitizeValue(value)
	if err != nil {
		res.Error = err.Error()
		res.Kind = KindQueryFailed
		return res
	}
	q, err := query.BuildCountEqual(p.conn, table, column)
	if err != nil {
		res.Error = err.Error()
		res.Kind = KindSchemaMismatch
		return res
	}

	if err := p.conn.DB().GetContext(ctx, &res.Count, q, v); err != nil {
		res.Error = err.Error()
		res.Kind = Classify(err)
		p.logger.Debug("duplicate probe failed", "table", table, "column", column, "error", err)
		return res
	}

	if res.HasDuplicates() {
		p.logger.Warn("duplicate reference rows", "table", table, "column", column, "value", value, "count", res.Count)
	}
	return res
}

// formatValue renders a scanned key for display. Drivers return text
// columns as []byte.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
