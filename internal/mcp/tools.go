package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dashprobe/dashprobe/internal/probe"
)

// maxConcurrency caps the fan-out of dashprobe_run_plan.
const maxConcurrency = 16

// registerTools registers all probe tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Configuration -----

	srv.AddTool(
		mcp.NewTool("dashprobe_datasource",
			mcp.WithDescription(
				"Show which data source (live or mock) the dashboard resolved, with "+
					"its display name, expected record count and any misconfiguration. "+
					"Use this first to know which backend the other tools are probing.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleDataSource,
	)

	// ----- Single checks -----

	srv.AddTool(
		mcp.NewTool("dashprobe_probe_table",
			mcp.WithDescription(
				"Check that a table exists and is readable, and return its row count. "+
					"A missing table is reported with kind schema_mismatch.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table to probe"),
			),
		),
		s.handleProbeTable,
	)

	srv.AddTool(
		mcp.NewTool("dashprobe_probe_columns",
			mcp.WithDescription(
				"Check that a table carries every listed column by selecting them "+
					"with a one-row limit.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table"),
			),
			mcp.WithArray("columns",
				mcp.Required(),
				mcp.Description("Column names the dashboard expects (e.g. [\"id\", \"brand_id\"])"),
				mcp.WithStringItems(),
			),
		),
		s.handleProbeColumns,
	)

	srv.AddTool(
		mcp.NewTool("dashprobe_probe_relationship",
			mcp.WithDescription(
				"Diagnose a parent/child relationship. Samples one child row, looks up "+
					"its parent by primary key, and separately runs the child-to-parent "+
					"join a nested select relies on. A lookup that succeeds next to a join "+
					"that fails means the foreign key is not declared in the backend's "+
					"metadata (kind relationship_mismatch); a lookup that fails means the "+
					"parent row is missing (kind data_missing).",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("parent",
				mcp.Required(),
				mcp.Description("Parent table (e.g. \"brands\")"),
			),
			mcp.WithString("child",
				mcp.Required(),
				mcp.Description("Child table holding the foreign key (e.g. \"products\")"),
			),
			mcp.WithString("foreign_key",
				mcp.Required(),
				mcp.Description("Foreign key column on the child table (e.g. \"brand_id\")"),
			),
		),
		s.handleProbeRelationship,
	)

	srv.AddTool(
		mcp.NewTool("dashprobe_detect_duplicates",
			mcp.WithDescription(
				"Count the rows of a table whose column equals a value. More than one "+
					"row means a name the dashboard treats as unique is duplicated.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table"),
			),
			mcp.WithString("column",
				mcp.Required(),
				mcp.Description("Column to match (e.g. \"name\")"),
			),
			mcp.WithString("value",
				mcp.Required(),
				mcp.Description("Value to count (e.g. \"JTI\")"),
			),
		),
		s.handleDetectDuplicates,
	)

	// ----- Plans -----

	srv.AddTool(
		mcp.NewTool("dashprobe_run_plan",
			mcp.WithDescription(
				"Run a probe plan and return the full report. The plan is YAML or JSON "+
					"with optional sections tables, columns, relationships and duplicates, e.g.\n\n"+
					"  tables: [brands, products]\n"+
					"  relationships:\n"+
					"    - {parent: brands, child: products, foreign_key: brand_id}\n"+
					"  duplicates:\n"+
					"    - {table: brands, column: name, value: JTI}",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("plan",
				mcp.Required(),
				mcp.Description("Plan document in YAML or JSON"),
			),
			mcp.WithNumber("concurrency",
				mcp.Description("Checks to run at once (default 4, max 16)"),
			),
		),
		s.handleRunPlan,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// handleDataSource returns the resolved data source selection.
func (s *MCPServer) handleDataSource(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	if s.sel == nil {
		return toolError("No data source selection: the backend was chosen explicitly (driver %s)",
			s.prober.Connector().DriverName())
	}
	return successJSON(s.sel.Summary())
}

// handleProbeTable checks that a table exists.
func (s *MCPServer) handleProbeTable(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	table, err := requireString(request, "table")
	if err != nil {
		return toolError("%v", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return successJSON(s.prober.ProbeTable(ctx, table))
}

// handleProbeColumns checks that a table carries the listed columns.
func (s *MCPServer) handleProbeColumns(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	table, err := requireString(request, "table")
	if err != nil {
		return toolError("%v", err)
	}
	columns := optionalStringSlice(request, "columns")
	if len(columns) == 0 {
		return toolError("missing required parameter %q", "columns")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return successJSON(s.prober.ProbeColumns(ctx, table, columns))
}

// handleProbeRelationship diagnoses one parent/child relationship.
func (s *MCPServer) handleProbeRelationship(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	parent, err := requireString(request, "parent")
	if err != nil {
		return toolError("%v", err)
	}
	child, err := requireString(request, "child")
	if err != nil {
		return toolError("%v", err)
	}
	fk, err := requireString(request, "foreign_key")
	if err != nil {
		return toolError("%v", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.prober.ProbeRelationship(ctx, parent, child, fk)
	return successJSON(struct {
		probe.RelationshipResult
		Mismatch probe.Kind `json:"mismatch"`
	}{res, res.Mismatch()})
}

// handleDetectDuplicates counts rows of table with column = value.
func (s *MCPServer) handleDetectDuplicates(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	table, err := requireString(request, "table")
	if err != nil {
		return toolError("%v", err)
	}
	column, err := requireString(request, "column")
	if err != nil {
		return toolError("%v", err)
	}
	value, err := requireString(request, "value")
	if err != nil {
		return toolError("%v", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.prober.DetectDuplicateNames(ctx, table, column, value)
	return successJSON(struct {
		probe.DuplicateResult
		HasDuplicates bool `json:"has_duplicates"`
	}{res, res.HasDuplicates()})
}

// handleRunPlan parses a plan document and runs it.
func (s *MCPServer) handleRunPlan(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	doc, err := requireString(request, "plan")
	if err != nil {
		return toolError("%v", err)
	}
	plan, err := probe.ParsePlan([]byte(doc))
	if err != nil {
		return toolError("Invalid plan: %v", err)
	}

	report := s.prober.Run(ctx, plan, probe.RunOptions{
		Concurrency: clamp(optionalInt(request, "concurrency", 4), 1, maxConcurrency),
		Timeout:     s.timeout,
	})
	if s.sel != nil {
		report.Mode = s.sel.Mode().String()
	}

	return successJSON(struct {
		*probe.Report
		Checks   int `json:"checks"`
		Failures int `json:"failures"`
	}{report, report.Checks(), report.Failures()})
}

func (s *MCPServer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
