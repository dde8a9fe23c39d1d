package probe

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunOptions controls how a plan is executed.
type RunOptions struct {
	// Concurrency bounds how many checks run at once. Values below 1 run
	// the plan sequentially.
	Concurrency int
	// Timeout, when positive, bounds each individual check.
	Timeout time.Duration
}

// Report collects the results of a plan run. Each slice is in plan order.
type Report struct {
	Mode          string               `json:"mode,omitempty"`
	Driver        string               `json:"driver"`
	StartedAt     time.Time            `json:"started_at"`
	DurationMS    int64                `json:"duration_ms"`
	Tables        []TableResult        `json:"tables"`
	Columns       []ColumnResult       `json:"columns"`
	Relationships []RelationshipResult `json:"relationships"`
	Duplicates    []DuplicateResult    `json:"duplicates"`
}

// Checks returns the total number of checks in the report.
func (r *Report) Checks() int {
	return len(r.Tables) + len(r.Columns) + len(r.Relationships) + len(r.Duplicates)
}

// Failures counts failed checks: missing tables or columns, relationships
// that do not resolve cleanly, duplicate probes that errored or found
// more than one row.
func (r *Report) Failures() int {
	n := 0
	for _, t := range r.Tables {
		if !t.Exists {
			n++
		}
	}
	for _, c := range r.Columns {
		if !c.Exists {
			n++
		}
	}
	for _, rel := range r.Relationships {
		if !rel.OK() {
			n++
		}
	}
	for _, d := range r.Duplicates {
		if d.Error != "" || d.HasDuplicates() {
			n++
		}
	}
	return n
}

// Run executes every check of plan and returns the report. Checks are
// independent, so with opts.Concurrency > 1 they fan out over the shared
// connection pool; each result is stored at its plan index.
func (p *Prober) Run(ctx context.Context, plan *Plan, opts RunOptions) *Report {
	started := time.Now()
	report := &Report{
		Driver:        p.conn.DriverName(),
		StartedAt:     started.UTC(),
		Tables:        make([]TableResult, len(plan.Tables)),
		Columns:       make([]ColumnResult, len(plan.Columns)),
		Relationships: make([]RelationshipResult, len(plan.Relationships)),
		Duplicates:    make([]DuplicateResult, len(plan.Duplicates)),
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	run := func(f func(ctx context.Context)) {
		g.Go(func() error {
			cctx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			f(cctx)
			return nil
		})
	}

	for i, table := range plan.Tables {
		run(func(ctx context.Context) {
			report.Tables[i] = p.ProbeTable(ctx, table)
		})
	}
	for i, c := range plan.Columns {
		run(func(ctx context.Context) {
			report.Columns[i] = p.ProbeColumns(ctx, c.Table, c.Columns)
		})
	}
	for i, rel := range plan.Relationships {
		run(func(ctx context.Context) {
			report.Relationships[i] = p.ProbeRelationship(ctx, rel.Parent, rel.Child, rel.ForeignKey)
		})
	}
	for i, d := range plan.Duplicates {
		run(func(ctx context.Context) {
			report.Duplicates[i] = p.DetectDuplicateNames(ctx, d.Table, d.Column, d.Value)
		})
	}

	g.Wait()

	report.DurationMS = time.Since(started).Milliseconds()
	p.logger.Info("plan finished",
		"checks", report.Checks(),
		"failures", report.Failures(),
		"concurrency", limit,
		"duration_ms", report.DurationMS,
	)
	return report
}
