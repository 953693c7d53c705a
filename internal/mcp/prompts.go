package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("build_view",
		mcp.WithPromptDescription("Guide through shaping a view with filters, sorts and grouping"),
		mcp.WithArgument("viewId",
			mcp.ArgumentDescription("View to reshape"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("What the view should show, in plain words"),
			mcp.RequiredArgument(),
		),
	), s.handleBuildViewPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("explain_rollup",
		mcp.WithPromptDescription("Explain how a rollup value was computed for a record"),
		mcp.WithArgument("dataSourceId", mcp.ArgumentDescription("Data source of the record"), mcp.RequiredArgument()),
		mcp.WithArgument("recordId", mcp.ArgumentDescription("Record ID"), mcp.RequiredArgument()),
		mcp.WithArgument("propertyId", mcp.ArgumentDescription("Rollup property ID"), mcp.RequiredArgument()),
	), s.handleExplainRollupPrompt)
}

func (s *Server) handleBuildViewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	viewID := req.Params.Arguments["viewId"]
	goal := req.Params.Arguments["goal"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Reshape view %s", viewID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Reshape view %q so that it shows: %s

Steps:
1. Call list_views and find the view's dataSourceId.
2. Call describe_data_source to learn property ids, types and options.
3. Use filter_options for any property you want to filter on; filter values are option ids, not labels.
4. Call update_view_settings with a single patch holding filters or advancedFilters, sorts and group. Set wait=true.
5. If the state is rolled_back, read the error, fix the patch and retry.
6. Call query_view and summarize the result for the user.`, viewID, goal),
				},
			},
		},
	}, nil
}

func (s *Server) handleExplainRollupPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Explain rollup %s on %s", args["propertyId"], args["recordId"]),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Explain the rollup %q on record %q of data source %q.

1. Call describe_data_source for %[3]q and read the rollup configuration: relation property, target property and calculation.
2. Call compute_rollup to get the value and its state.
3. If the state is unconfigured, loading or error, say which piece is missing.
4. Otherwise list the related records that contributed and how the calculation combined them.`,
						args["propertyId"], args["recordId"], args["dataSourceId"]),
				},
			},
		},
	}, nil
}
