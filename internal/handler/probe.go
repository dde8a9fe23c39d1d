package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashprobe/dashprobe/internal/datasource"
	"github.com/dashprobe/dashprobe/internal/probe"
)

// maxConcurrency caps the fan-out a client can ask for on POST /probe.
const maxConcurrency = 16

// ProbeHandler exposes the schema probe over HTTP. Probe results are
// returned with 200 even when the check failed; pass ?strict=1 to have the
// failure kind mapped to an error status instead.
type ProbeHandler struct {
	prober  *probe.Prober
	sel     *datasource.Selection
	timeout time.Duration
}

// NewProbeHandler creates a ProbeHandler. timeout, when positive, bounds
// each check.
func NewProbeHandler(prober *probe.Prober, sel *datasource.Selection, timeout time.Duration) *ProbeHandler {
	return &ProbeHandler{prober: prober, sel: sel, timeout: timeout}
}

// checkContext derives the context a single check runs under from the
// request, bounded by the handler's timeout.
func (h *ProbeHandler) checkContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *ProbeHandler) respond(w http.ResponseWriter, r *http.Request, strictStatus int, v interface{}) {
	status := http.StatusOK
	if queryBool(r, "strict") {
		status = strictStatus
	}
	writeJSON(w, status, v)
}

// GetDataSource handles GET /api/v1/datasource.
func (h *ProbeHandler) GetDataSource(w http.ResponseWriter, r *http.Request) {
	if h.sel == nil {
		writeError(w, http.StatusNotFound, "no data source selection; backend was given explicitly")
		return
	}
	writeJSON(w, http.StatusOK, h.sel.Summary())
}

// ProbeTable handles GET /api/v1/tables/{tableName}.
func (h *ProbeHandler) ProbeTable(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.checkContext(r)
	defer cancel()

	res := h.prober.ProbeTable(ctx, chi.URLParam(r, "tableName"))
	h.respond(w, r, statusForKind(res.Kind), res)
}

// ProbeColumns handles GET /api/v1/tables/{tableName}/columns?columns=a,b.
func (h *ProbeHandler) ProbeColumns(w http.ResponseWriter, r *http.Request) {
	columns := queryList(r, "columns")
	if len(columns) == 0 {
		writeError(w, http.StatusBadRequest, "columns query parameter is required")
		return
	}
	ctx, cancel := h.checkContext(r)
	defer cancel()

	res := h.prober.ProbeColumns(ctx, chi.URLParam(r, "tableName"), columns)
	h.respond(w, r, statusForKind(res.Kind), res)
}

// ProbeRelationship handles GET /api/v1/relationships?parent=&child=&fk=.
func (h *ProbeHandler) ProbeRelationship(w http.ResponseWriter, r *http.Request) {
	parent, child, fk := queryString(r, "parent"), queryString(r, "child"), queryString(r, "fk")
	if parent == "" || child == "" || fk == "" {
		writeError(w, http.StatusBadRequest, "parent, child and fk query parameters are required")
		return
	}
	ctx, cancel := h.checkContext(r)
	defer cancel()

	res := h.prober.ProbeRelationship(ctx, parent, child, fk)
	h.respond(w, r, statusForKind(res.Mismatch()), res)
}

// DetectDuplicates handles GET /api/v1/duplicates?table=&column=&value=.
func (h *ProbeHandler) DetectDuplicates(w http.ResponseWriter, r *http.Request) {
	table, column := queryString(r, "table"), queryString(r, "column")
	if table == "" || column == "" || !r.URL.Query().Has("value") {
		writeError(w, http.StatusBadRequest, "table, column and value query parameters are required")
		return
	}
	ctx, cancel := h.checkContext(r)
	defer cancel()

	res := h.prober.DetectDuplicateNames(ctx, table, column, r.URL.Query().Get("value"))
	status := statusForKind(res.Kind)
	if status == http.StatusOK && res.HasDuplicates() {
		status = http.StatusConflict
	}
	h.respond(w, r, status, res)
}

// RunPlan handles POST /api/v1/probe?concurrency=N with a JSON plan body.
func (h *ProbeHandler) RunPlan(w http.ResponseWriter, r *http.Request) {
	var plan probe.Plan
	if err := readJSON(w, r, &plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan body: "+err.Error())
		return
	}
	if err := plan.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := probe.RunOptions{
		Concurrency: clampInt(queryInt(r, "concurrency", 1), 1, maxConcurrency),
		Timeout:     h.timeout,
	}
	report := h.prober.Run(r.Context(), &plan, opts)
	if h.sel != nil {
		report.Mode = string(h.sel.Mode())
	}

	status := http.StatusOK
	if queryBool(r, "strict") && report.Failures() > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}
