package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/connector/sqlite"
	"github.com/dashprobe/dashprobe/internal/datasource"
	"github.com/dashprobe/dashprobe/internal/probe"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	server   *Server
	registry *connector.Registry
}

// newTestEnv wires a Server over a temp-file SQLite backend registered as
// "mock", selected through the data source selector with mode.
func newTestEnv(t *testing.T, mode string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := connector.NewRegistry()
	registry.RegisterDriver("sqlite", func() connector.Connector { return sqlite.New() })
	t.Cleanup(registry.CloseAll)

	conn, err := registry.Connect("mock", connector.ConnectionConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "server.db"),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := conn.DB().Exec(`CREATE TABLE brands (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}

	sel, err := datasource.Select(datasource.Environment{Mode: mode, Host: "localhost"}, logger)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	cfg := DefaultConfig()
	cfg.CORSOrigins = []string{"https://dashboard.example.com"}
	srv := New(cfg, registry, sel, probe.NewProber(conn, logger), logger)
	return &testEnv{server: srv, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "mock")

	rr := env.do(t, "GET", "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, "mock")

	rr := env.do(t, "GET", "/readyz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Checks["mock"] != "ok" || resp.Checks["data_source"] != "mock" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestReadyzLiveWithoutBackendURL(t *testing.T) {
	env := newTestEnv(t, "REAL")

	rr := env.do(t, "GET", "/readyz", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "backend URL") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// API
// ---------------------------------------------------------------------------

func TestDataSourceEndpoint(t *testing.T) {
	env := newTestEnv(t, "REAL")

	rr := env.do(t, "GET", "/api/v1/datasource", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var sum datasource.Summary
	decodeJSON(t, rr, &sum)
	if !sum.IsLive || sum.IsMock || sum.ExpectedRecordCount != datasource.LiveRecordThreshold {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if len(sum.Issues) != 1 {
		t.Errorf("Issues = %v, want the missing backend URL", sum.Issues)
	}
}

func TestTableEndpointThroughServer(t *testing.T) {
	env := newTestEnv(t, "mock")

	rr := env.do(t, "GET", "/api/v1/tables/brands", nil, nil)
	var res probe.TableResult
	decodeJSON(t, rr, &res)
	if !res.Exists || res.RowCount == nil || *res.RowCount != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on API responses")
	}
}

func TestRunPlanThroughServer(t *testing.T) {
	env := newTestEnv(t, "mock")

	rr := env.do(t, "POST", "/api/v1/probe", strings.NewReader(`{"tables":["brands","flavours"]}`),
		map[string]string{"Content-Type": "application/json"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var report probe.Report
	decodeJSON(t, rr, &report)
	if report.Failures() != 1 || report.Driver != "sqlite" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, "mock")

	rr := env.do(t, "OPTIONS", "/api/v1/tables/brands", nil, map[string]string{
		"Origin":                        "https://dashboard.example.com",
		"Access-Control-Request-Method": "GET",
	})
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, "mock")

	rr := env.do(t, "DELETE", "/api/v1/tables/brands", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}
