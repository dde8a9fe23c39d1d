package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dashprobe/dashprobe/internal/query"
)

const (
	dataSourceURI        = "dashprobe://datasource"
	relationshipsURIBase = "dashprobe://relationships/"
)

// registerResources adds MCP resource definitions to the server.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// dashprobe://datasource: resolved data source selection
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			dataSourceURI,
			"Data Source Selection",
			mcp.WithResourceDescription(
				"The live or mock data source the dashboard resolved at start-up.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleDataSourceResource,
	)

	// -------------------------------------------------------------------
	// dashprobe://relationships/{table}: declared foreign keys (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			relationshipsURIBase+"{table}",
			"Declared Relationships",
			mcp.WithTemplateDescription(
				"Primary key and declared foreign keys of a table, as the backend's "+
					"metadata reports them. Nested selects only work over these.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleRelationshipsResource,
	)
}

// handleDataSourceResource returns the resolved selection summary.
func (s *MCPServer) handleDataSourceResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	if s.sel == nil {
		return nil, fmt.Errorf("no data source selection: backend chosen explicitly")
	}
	return jsonResource(dataSourceURI, s.sel.Summary())
}

// handleRelationshipsResource returns the primary key and foreign keys of
// the table named in the URI.
func (s *MCPServer) handleRelationshipsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	table := strings.TrimPrefix(uri, relationshipsURIBase)
	if table == "" || table == uri {
		return nil, fmt.Errorf("invalid relationships URI %q: expected %s{table}", uri, relationshipsURIBase)
	}
	if err := query.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	conn := s.prober.Connector()
	pk, err := conn.PrimaryKey(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key of %q: %w", table, err)
	}
	fks, err := conn.ForeignKeys(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %q: %w", table, err)
	}

	return jsonResource(uri, map[string]interface{}{
		"table":        table,
		"primary_key":  pk,
		"foreign_keys": fks,
	})
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
