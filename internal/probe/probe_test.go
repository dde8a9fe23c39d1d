package probe

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/connector/sqlite"
)

// newTestProber opens a temp-file SQLite database, applies stmts and
// returns a Prober over it. Foreign keys are not enforced so fixtures can
// hold dangling references.
func newTestProber(t *testing.T, stmts ...string) *Prober {
	t.Helper()

	conn := sqlite.New()
	dsn := filepath.Join(t.TempDir(), "probe.db") + "?_pragma=foreign_keys(0)"
	if err := conn.Connect(connector.ConnectionConfig{Driver: "sqlite", DSN: dsn, MaxOpenConns: 4}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Disconnect() })

	for _, s := range stmts {
		if _, err := conn.DB().Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return NewProber(conn, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

var schema = []string{
	`CREATE TABLE brands (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		brand_id INTEGER REFERENCES brands(id)
	)`,
	`CREATE TABLE reviews (id INTEGER PRIMARY KEY, product_id INTEGER, body TEXT)`,
}

func withSchema(stmts ...string) []string {
	return append(append([]string{}, schema...), stmts...)
}

func TestProbeTable(t *testing.T) {
	p := newTestProber(t, withSchema(
		`INSERT INTO brands (id, name) VALUES (1, 'JTI'), (2, 'Philip Morris')`,
	)...)
	ctx := context.Background()

	res := p.ProbeTable(ctx, "brands")
	if !res.Exists {
		t.Fatalf("expected brands to exist, got error %q", res.Error)
	}
	if res.RowCount == nil || *res.RowCount != 2 {
		t.Errorf("RowCount = %v, want 2", res.RowCount)
	}
	if res.Error != "" {
		t.Errorf("unexpected error: %s", res.Error)
	}

	empty := p.ProbeTable(ctx, "reviews")
	if !empty.Exists || empty.RowCount == nil || *empty.RowCount != 0 {
		t.Errorf("empty table: %+v", empty)
	}
}

func TestProbeTableMissing(t *testing.T) {
	p := newTestProber(t, schema...)

	res := p.ProbeTable(context.Background(), "flavours")
	if res.Exists {
		t.Fatal("expected missing table to report Exists=false")
	}
	if res.Error == "" {
		t.Error("expected a non-empty error message")
	}
	if res.RowCount != nil {
		t.Errorf("RowCount = %d, want nil", *res.RowCount)
	}
	if res.Kind != KindSchemaMismatch {
		t.Errorf("Kind = %q, want %q", res.Kind, KindSchemaMismatch)
	}
}

func TestProbeTableInvalidIdentifier(t *testing.T) {
	p := newTestProber(t, schema...)

	res := p.ProbeTable(context.Background(), "brands; DROP TABLE brands")
	if res.Exists || res.Error == "" {
		t.Errorf("expected invalid identifier to fail, got %+v", res)
	}
	if again := p.ProbeTable(context.Background(), "brands"); !again.Exists {
		t.Error("brands should still exist")
	}
}

func TestProbeColumns(t *testing.T) {
	p := newTestProber(t, schema...)
	ctx := context.Background()

	tests := []struct {
		name    string
		table   string
		columns []string
		want    bool
	}{
		{"all present on empty table", "products", []string{"id", "name", "brand_id"}, true},
		{"single column", "brands", []string{"name"}, true},
		{"unknown column", "products", []string{"id", "sku"}, false},
		{"unknown table", "flavours", []string{"id"}, false},
		{"no columns", "products", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.ProbeColumns(ctx, tt.table, tt.columns)
			if res.Exists != tt.want {
				t.Errorf("Exists = %v, want %v (error %q)", res.Exists, tt.want, res.Error)
			}
			if !tt.want && res.Error == "" {
				t.Error("expected an error message on failure")
			}
		})
	}
}

func TestDetectDuplicateNames(t *testing.T) {
	p := newTestProber(t, withSchema(
		`INSERT INTO brands (id, name) VALUES (1, 'JTI'), (2, 'JTI'), (3, 'Philip Morris')`,
	)...)
	ctx := context.Background()

	tests := []struct {
		value string
		want  int64
		dup   bool
	}{
		{"JTI", 2, true},
		{"Philip Morris", 1, false},
		{"Imperial", 0, false},
		{"jti", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			res := p.DetectDuplicateNames(ctx, "brands", "name", tt.value)
			if res.Error != "" {
				t.Fatalf("unexpected error: %s", res.Error)
			}
			if res.Count != tt.want {
				t.Errorf("Count = %d, want %d", res.Count, tt.want)
			}
			if res.HasDuplicates() != tt.dup {
				t.Errorf("HasDuplicates() = %v, want %v", res.HasDuplicates(), tt.dup)
			}
		})
	}
}

func TestDetectDuplicateNamesMissingColumn(t *testing.T) {
	p := newTestProber(t, schema...)

	res := p.DetectDuplicateNames(context.Background(), "brands", "title", "JTI")
	if res.Error == "" {
		t.Fatal("expected error for unknown column")
	}
	if res.Kind != KindSchemaMismatch {
		t.Errorf("Kind = %q, want %q", res.Kind, KindSchemaMismatch)
	}
}

func TestProbeRelationshipResolves(t *testing.T) {
	p := newTestProber(t, withSchema(
		`INSERT INTO brands (id, name) VALUES (1, 'JTI')`,
		`INSERT INTO products (id, name, brand_id) VALUES (10, 'Winston', 1)`,
	)...)

	res := p.ProbeRelationship(context.Background(), "brands", "products", "brand_id")
	if !res.SampleFound || res.SampleKey != "1" {
		t.Fatalf("sample: found=%v key=%q error=%q", res.SampleFound, res.SampleKey, res.Error)
	}
	if !res.LookupSucceeded {
		t.Errorf("lookup failed: %s", res.LookupError)
	}
	if !res.JoinSucceeded || !res.JoinResolvedParent {
		t.Errorf("join: succeeded=%v resolved=%v error=%q", res.JoinSucceeded, res.JoinResolvedParent, res.JoinError)
	}
	if res.ParentKey != "id" {
		t.Errorf("ParentKey = %q, want id", res.ParentKey)
	}
	if !res.OK() {
		t.Errorf("Mismatch() = %q, want none", res.Mismatch())
	}
}

func TestProbeRelationshipOrphan(t *testing.T) {
	p := newTestProber(t, withSchema(
		`INSERT INTO brands (id, name) VALUES (1, 'JTI')`,
		`INSERT INTO products (id, name, brand_id) VALUES (11, 'Ghost', 99)`,
	)...)

	res := p.ProbeRelationship(context.Background(), "brands", "products", "brand_id")
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.LookupSucceeded {
		t.Error("lookup of a missing parent should fail")
	}
	if res.LookupError == "" {
		t.Error("expected a lookup error message")
	}
	if !res.JoinSucceeded {
		t.Errorf("join should succeed without a parent, got error %q", res.JoinError)
	}
	if res.JoinResolvedParent {
		t.Error("join should not resolve a parent")
	}
	if res.Mismatch() != KindDataMissing {
		t.Errorf("Mismatch() = %q, want %q", res.Mismatch(), KindDataMissing)
	}
}

func TestProbeRelationshipUndeclared(t *testing.T) {
	p := newTestProber(t, withSchema(
		`INSERT INTO brands (id, name) VALUES (1, 'JTI')`,
		`INSERT INTO products (id, name, brand_id) VALUES (10, 'Winston', 1)`,
		`INSERT INTO reviews (id, product_id, body) VALUES (1, 10, 'fine')`,
	)...)

	res := p.ProbeRelationship(context.Background(), "products", "reviews", "product_id")
	if !res.LookupSucceeded {
		t.Fatalf("lookup should succeed, got %q", res.LookupError)
	}
	if res.JoinSucceeded {
		t.Fatal("join should fail without a declared foreign key")
	}
	if !strings.Contains(res.JoinError, "could not find a relationship") {
		t.Errorf("JoinError = %q", res.JoinError)
	}
	if res.Mismatch() != KindRelationshipMismatch {
		t.Errorf("Mismatch() = %q, want %q", res.Mismatch(), KindRelationshipMismatch)
	}
}

func TestProbeRelationshipNoSample(t *testing.T) {
	p := newTestProber(t, schema...)

	res := p.ProbeRelationship(context.Background(), "brands", "products", "brand_id")
	if res.SampleFound {
		t.Fatal("expected no sample from an empty child table")
	}
	if res.Error == "" || res.Mismatch() != KindDataMissing {
		t.Errorf("error=%q mismatch=%q", res.Error, res.Mismatch())
	}
}

func TestProbeRelationshipMissingTable(t *testing.T) {
	p := newTestProber(t, schema...)

	res := p.ProbeRelationship(context.Background(), "brands", "variants", "brand_id")
	if res.Error == "" {
		t.Fatal("expected an error for a missing child table")
	}
	if res.Mismatch() != KindSchemaMismatch {
		t.Errorf("Mismatch() = %q, want %q", res.Mismatch(), KindSchemaMismatch)
	}
}

func TestProbeRelationshipMissingForeignKey(t *testing.T) {
	p := newTestProber(t, withSchema(
		`INSERT INTO brands (id, name) VALUES (1, 'JTI')`,
		`INSERT INTO products (id, name, brand_id) VALUES (10, 'Winston', 1)`,
	)...)

	res := p.ProbeRelationship(context.Background(), "brands", "products", "brand_idx")
	if res.SampleFound {
		t.Fatalf("sampled %q from a column that does not exist", res.SampleKey)
	}
	if res.Mismatch() != KindSchemaMismatch {
		t.Errorf("Mismatch() = %q, want %q (error %q)", res.Mismatch(), KindSchemaMismatch, res.Error)
	}
}

func TestDetectDuplicateNamesRejectsNUL(t *testing.T) {
	p := newTestProber(t, withSchema(
		`INSERT INTO brands (id, name) VALUES (1, 'JTI'), (2, 'JTI')`,
	)...)

	res := p.DetectDuplicateNames(context.Background(), "brands", "name", "J\x00TI")
	if res.Error == "" {
		t.Fatalf("expected an error, got Count = %d", res.Count)
	}
	if res.Count != 0 {
		t.Errorf("Count = %d, want 0", res.Count)
	}
}

func TestRelationshipMismatch(t *testing.T) {
	tests := []struct {
		name string
		res  RelationshipResult
		want Kind
	}{
		{"clean", RelationshipResult{LookupSucceeded: true, JoinSucceeded: true, JoinResolvedParent: true}, KindNone},
		{"orphan", RelationshipResult{JoinSucceeded: true}, KindDataMissing},
		{"metadata", RelationshipResult{LookupSucceeded: true}, KindRelationshipMismatch},
		{"join finds what lookup missed", RelationshipResult{JoinSucceeded: true, JoinResolvedParent: true}, KindRelationshipMismatch},
		{"join without parent", RelationshipResult{LookupSucceeded: true, JoinSucceeded: true}, KindRelationshipMismatch},
		{"both failed", RelationshipResult{Kind: KindBackendUnavailable}, KindBackendUnavailable},
		{"error", RelationshipResult{Error: "boom"}, KindQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Mismatch(); got != tt.want {
				t.Errorf("Mismatch() = %q, want %q", got, tt.want)
			}
		})
	}
}

// unconnected embeds a never-connected SQLite connector, so DB() is nil
// and any query panics inside the driver layer.
type unconnected struct {
	connector.Connector
}

func TestProbeRecoversPanics(t *testing.T) {
	var logs bytes.Buffer
	p := NewProber(unconnected{sqlite.New()}, slog.New(slog.NewTextHandler(&logs, nil)))

	res := p.ProbeTable(context.Background(), "brands")
	if res.Exists {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "internal error") {
		t.Errorf("Error = %q, want internal error", res.Error)
	}
	if !strings.Contains(logs.String(), "probe panicked") {
		t.Error("expected the panic to be logged")
	}

	dup := p.DetectDuplicateNames(context.Background(), "brands", "name", "JTI")
	if dup.Error == "" {
		t.Error("expected duplicate probe to record the panic")
	}
}

func TestNewProberNilLogger(t *testing.T) {
	p := NewProber(sqlite.New(), nil)
	if p.logger == nil {
		t.Fatal("expected default logger")
	}
}
