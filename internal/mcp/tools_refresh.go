package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerRefreshTools() {
	if s.refresh == nil {
		return
	}
	s.mcp.AddTool(mcp.NewTool("refresh_data_source",
		mcp.WithDescription("Re-fetch a data source from the backend, replacing the cached schema and records"),
		mcp.WithString("dataSourceId", mcp.Description("Data source ID"), mcp.Required()),
	), s.handleRefreshDataSource)
}

func (s *Server) handleRefreshDataSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dsID, err := requireString(req.GetArguments(), "dataSourceId")
	if err != nil {
		return nil, err
	}
	if err := s.refresh.RefreshNow(ctx, dsID); err != nil {
		return nil, fmt.Errorf("refresh %s: %w", dsID, err)
	}
	return textResult(fmt.Sprintf("Data source %s refreshed", dsID)), nil
}

func (s *Server) registerImportTool() {
	if s.refresh == nil {
		return
	}
	s.mcp.AddTool(mcp.NewTool("import_records",
		mcp.WithDescription("Replace the records of a data source with the rows of a CSV or JSON file, then re-fetch it"),
		mcp.WithString("dataSourceId", mcp.Description("Data source ID"), mcp.Required()),
		mcp.WithString("path", mcp.Description("Path to a .csv, .tsv or .json file"), mcp.Required()),
	), s.handleImportRecords)
}

func (s *Server) handleImportRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dsID, err := requireString(args, "dataSourceId")
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	if err := s.refresh.ImportNow(ctx, dsID, path); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Imported %s into %s", path, dsID)), nil
}
