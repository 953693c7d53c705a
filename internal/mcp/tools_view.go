package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"notesdb/internal/domain"
	"notesdb/internal/viewsync"
)

func (s *Server) registerViewTools() {
	s.mcp.AddTool(mcp.NewTool("list_views",
		mcp.WithDescription("List saved views with their settings. Filters by data source when dataSourceId is given."),
		mcp.WithString("dataSourceId", mcp.Description("Data source ID (optional)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListViews)

	s.mcp.AddTool(mcp.NewTool("describe_data_source",
		mcp.WithDescription("Return a data source schema: properties, options, relation and rollup configuration"),
		mcp.WithString("dataSourceId", mcp.Description("Data source ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleDescribeDataSource)

	s.mcp.AddTool(mcp.NewTool("query_view",
		mcp.WithDescription("Run a view: apply its filters, sorts and grouping and return the resulting records"),
		mcp.WithString("viewId", mcp.Description("View ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleQueryView)

	s.mcp.AddTool(mcp.NewTool("evaluate_filters",
		mcp.WithDescription("Return the records that pass a view's simple and advanced filters, unsorted"),
		mcp.WithString("viewId", mcp.Description("View ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleEvaluateFilters)

	s.mcp.AddTool(mcp.NewTool("compute_rollup",
		mcp.WithDescription("Compute one rollup property for one record"),
		mcp.WithString("dataSourceId", mcp.Description("Data source ID of the record"), mcp.Required()),
		mcp.WithString("recordId", mcp.Description("Record ID"), mcp.Required()),
		mcp.WithString("propertyId", mcp.Description("Rollup property ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleComputeRollup)

	s.mcp.AddTool(mcp.NewTool("filter_options",
		mcp.WithDescription("List the values a filter on a property can select: declared options first, then observed values"),
		mcp.WithString("dataSourceId", mcp.Description("Data source ID"), mcp.Required()),
		mcp.WithString("propertyId", mcp.Description("Property ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleFilterOptions)

	s.mcp.AddTool(mcp.NewTool("update_view_settings",
		mcp.WithDescription("Change a view's filters, sorts, grouping or property visibility. "+
			"The change applies immediately and is persisted in the background; "+
			"set wait to block until the backend confirms or rejects it."),
		mcp.WithString("viewId", mcp.Description("View ID"), mcp.Required()),
		mcp.WithString("patch", mcp.Description(`Settings patch as JSON, e.g. {"sorts":[{"propertyId":"status","direction":"asc"}]}. `+
			`Fields: filters, advancedFilters, sorts, group, clearGroup, propertyVisibility`), mcp.Required()),
		mcp.WithBoolean("wait", mcp.Description("Wait for the persisted result (default false)")),
	), s.handleUpdateViewSettings)
}

func (s *Server) handleListViews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	views, err := s.views.ListViews(ctx, optionalString(args, "dataSourceId"))
	if err != nil {
		return nil, err
	}
	return jsonResult(views)
}

func (s *Server) handleDescribeDataSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dsID, err := requireString(req.GetArguments(), "dataSourceId")
	if err != nil {
		return nil, err
	}
	ds, err := s.views.Properties(ctx, dsID)
	if err != nil {
		return nil, err
	}
	return jsonResult(ds)
}

func (s *Server) handleQueryView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	viewID, err := requireString(req.GetArguments(), "viewId")
	if err != nil {
		return nil, err
	}
	res, err := s.views.QueryView(ctx, viewID)
	if err != nil {
		return nil, err
	}
	return jsonResult(res)
}

func (s *Server) handleEvaluateFilters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	viewID, err := requireString(req.GetArguments(), "viewId")
	if err != nil {
		return nil, err
	}
	records, err := s.views.EvaluateFilters(ctx, viewID)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"viewId":  viewID,
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleComputeRollup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dsID, err := requireString(args, "dataSourceId")
	if err != nil {
		return nil, err
	}
	recordID, err := requireString(args, "recordId")
	if err != nil {
		return nil, err
	}
	propID, err := requireString(args, "propertyId")
	if err != nil {
		return nil, err
	}
	res, err := s.views.ComputeRollup(ctx, dsID, recordID, propID)
	if err != nil {
		return nil, err
	}
	return jsonResult(res)
}

func (s *Server) handleFilterOptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dsID, err := requireString(args, "dataSourceId")
	if err != nil {
		return nil, err
	}
	propID, err := requireString(args, "propertyId")
	if err != nil {
		return nil, err
	}
	opts, err := s.views.FilterOptions(ctx, dsID, propID)
	if err != nil {
		return nil, err
	}
	return jsonResult(opts)
}

// mutationResult is what update_view_settings reports back.
type mutationResult struct {
	ViewID string         `json:"viewId"`
	Seq    uint64         `json:"seq"`
	State  viewsync.State `json:"state"`
	Error  string         `json:"error,omitempty"`
	Kind   string         `json:"kind,omitempty"`
}

func (s *Server) handleUpdateViewSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	viewID, err := requireString(args, "viewId")
	if err != nil {
		return nil, err
	}
	raw, err := requireString(args, "patch")
	if err != nil {
		return nil, err
	}

	var patch domain.SettingsPatch
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return nil, fmt.Errorf("invalid patch JSON: %w", err)
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("patch changes nothing")
	}

	m, err := s.views.ApplySettingsMutation(ctx, viewID, patch)
	if err != nil {
		return nil, err
	}
	out := mutationResult{ViewID: viewID, Seq: m.Seq, State: m.State()}

	if wait, _ := args["wait"].(bool); wait {
		state, err := m.Wait(ctx)
		out.State = state
		if err != nil {
			out.Error = err.Error()
			out.Kind = string(domain.Classify(err))
		}
	}
	s.log.Debug().Str("view", viewID).Uint64("seq", m.Seq).Str("state", string(out.State)).Msg("settings mutation")
	return jsonResult(out)
}
