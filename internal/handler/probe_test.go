package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/connector/sqlite"
	"github.com/dashprobe/dashprobe/internal/datasource"
	"github.com/dashprobe/dashprobe/internal/probe"
)

// newTestRouter mounts the probe routes over a temp-file SQLite backend
// holding brands and products, with JTI inserted twice.
func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	conn := sqlite.New()
	dsn := filepath.Join(t.TempDir(), "handler.db")
	if err := conn.Connect(connector.ConnectionConfig{Driver: "sqlite", DSN: dsn}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Disconnect() })

	for _, s := range []string{
		`CREATE TABLE brands (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT, brand_id INTEGER REFERENCES brands(id))`,
		`INSERT INTO brands (id, name) VALUES (1, 'JTI'), (2, 'JTI')`,
		`INSERT INTO products (id, name, brand_id) VALUES (10, 'Winston', 1)`,
	} {
		if _, err := conn.DB().Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sel, err := datasource.Select(datasource.Environment{Mode: "mock", Host: "localhost"}, logger)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	h := NewProbeHandler(probe.NewProber(conn, logger), sel, 0)

	r := chi.NewRouter()
	r.Get("/datasource", h.GetDataSource)
	r.Get("/tables/{tableName}", h.ProbeTable)
	r.Get("/tables/{tableName}/columns", h.ProbeColumns)
	r.Get("/relationships", h.ProbeRelationship)
	r.Get("/duplicates", h.DetectDuplicates)
	r.Post("/probe", h.RunPlan)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
}

func TestGetDataSource(t *testing.T) {
	r := newTestRouter(t)

	rr := do(t, r, "GET", "/datasource", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var sum datasource.Summary
	decode(t, rr, &sum)
	if !sum.IsMock || sum.Mode != datasource.ModeMock {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestProbeTableEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rr := do(t, r, "GET", "/tables/brands", nil)
	var res probe.TableResult
	decode(t, rr, &res)
	if !res.Exists || res.RowCount == nil || *res.RowCount != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	// Missing table: 200 by default, 404 when strict.
	rr = do(t, r, "GET", "/tables/flavours", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("non-strict status = %d, want 200", rr.Code)
	}
	rr = do(t, r, "GET", "/tables/flavours?strict=1", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("strict status = %d, want 404", rr.Code)
	}
}

func TestProbeColumnsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rr := do(t, r, "GET", "/tables/products/columns?columns=id,brand_id", nil)
	var res probe.ColumnResult
	decode(t, rr, &res)
	if !res.Exists {
		t.Errorf("expected columns to exist: %+v", res)
	}

	rr = do(t, r, "GET", "/tables/products/columns", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing columns: status = %d, want 400", rr.Code)
	}
}

func TestProbeRelationshipEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rr := do(t, r, "GET", "/relationships?parent=brands&child=products&fk=brand_id&strict=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var res probe.RelationshipResult
	decode(t, rr, &res)
	if !res.LookupSucceeded || !res.JoinSucceeded || !res.JoinResolvedParent {
		t.Errorf("unexpected result: %+v", res)
	}

	rr = do(t, r, "GET", "/relationships?parent=brands", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing params: status = %d, want 400", rr.Code)
	}
}

func TestDetectDuplicatesEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rr := do(t, r, "GET", "/duplicates?table=brands&column=name&value=JTI", nil)
	var res probe.DuplicateResult
	decode(t, rr, &res)
	if res.Count != 2 {
		t.Errorf("Count = %d, want 2", res.Count)
	}

	rr = do(t, r, "GET", "/duplicates?table=brands&column=name&value=JTI&strict=true", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("strict status = %d, want 409", rr.Code)
	}

	rr = do(t, r, "GET", "/duplicates?table=brands&column=name", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing value: status = %d, want 400", rr.Code)
	}
}

func TestRunPlanEndpoint(t *testing.T) {
	r := newTestRouter(t)

	body := `{"tables": ["brands", "flavours"], "duplicates": [{"table": "brands", "column": "name", "value": "JTI"}]}`
	rr := do(t, r, "POST", "/probe?concurrency=4", strings.NewReader(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var report probe.Report
	decode(t, rr, &report)
	if report.Mode != "mock" {
		t.Errorf("Mode = %q, want mock", report.Mode)
	}
	if len(report.Tables) != 2 || report.Tables[0].Table != "brands" || report.Tables[1].Exists {
		t.Errorf("Tables = %+v", report.Tables)
	}
	if report.Failures() != 2 {
		t.Errorf("Failures() = %d, want 2", report.Failures())
	}

	rr = do(t, r, "POST", "/probe?strict=1", strings.NewReader(body))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("strict status = %d, want 422", rr.Code)
	}
}

func TestRunPlanRejectsBadBodies(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"tables": [`},
		{"empty plan", `{}`},
		{"bad identifier", `{"tables": ["brands; drop table brands"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, "POST", "/probe", bytes.NewBufferString(tt.body))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestCheckContextHonorsTimeout(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tables/brands", nil)

	h := NewProbeHandler(nil, nil, 0)
	ctx, cancel := h.checkContext(req)
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}
	cancel()

	h = NewProbeHandler(nil, nil, time.Minute)
	ctx, cancel = h.checkContext(req)
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if until := time.Until(deadline); until <= 0 || until > time.Minute {
		t.Errorf("deadline in %v, want within a minute", until)
	}
}
