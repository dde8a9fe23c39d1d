package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/dashprobe/dashprobe/internal/model"
	"github.com/dashprobe/dashprobe/internal/probe"
)

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		defaultVal int
		want       int
	}{
		{"returns default for missing param", "/test", 1, 1},
		{"parses integer param", "/test?concurrency=4", 1, 4},
		{"returns default for non-integer", "/test?concurrency=abc", 1, 1},
		{"parses zero", "/test?concurrency=0", 1, 0},
		{"returns default for empty value", "/test?concurrency=", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			if got := queryInt(r, "concurrency", tt.defaultVal); got != tt.want {
				t.Errorf("queryInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQueryList(t *testing.T) {
	tests := []struct {
		url  string
		want []string
	}{
		{"/t", nil},
		{"/t?columns=", nil},
		{"/t?columns=id", []string{"id"}},
		{"/t?columns=id,name,%20brand_id%20", []string{"id", "name", "brand_id"}},
		{"/t?columns=id,,name,", []string{"id", "name"}},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			if got := queryList(r, "columns"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("queryList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryBool(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"/t", false},
		{"/t?strict=1", true},
		{"/t?strict=true", true},
		{"/t?strict=yes", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.url, nil)
		if got := queryBool(r, "strict"); got != tt.want {
			t.Errorf("queryBool(%s) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	if got := clampInt(0, 1, 16); got != 1 {
		t.Errorf("clampInt(0) = %d", got)
	}
	if got := clampInt(100, 1, 16); got != 16 {
		t.Errorf("clampInt(100) = %d", got)
	}
	if got := clampInt(4, 1, 16); got != 4 {
		t.Errorf("clampInt(4) = %d", got)
	}
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind probe.Kind
		want int
	}{
		{probe.KindNone, http.StatusOK},
		{probe.KindBackendUnavailable, http.StatusServiceUnavailable},
		{probe.KindSchemaMismatch, http.StatusNotFound},
		{probe.KindDataMissing, http.StatusNotFound},
		{probe.KindRelationshipMismatch, http.StatusConflict},
		{probe.KindQueryFailed, http.StatusBadGateway},
	}

	for _, tt := range tests {
		if got := statusForKind(tt.kind); got != tt.want {
			t.Errorf("statusForKind(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusBadRequest, "bad input", map[string]interface{}{"field": "table"})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != 400 || resp.Error.Message != "bad input" || resp.Error.Context["field"] != "table" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}
