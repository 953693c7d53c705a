package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	viewsURI         = "notesdb://views"
	dataSourcePrefix = "notesdb://data-source/"
	viewPrefix       = "notesdb://view/"
)

func (s *Server) registerResources() {
	// ── notesdb://views ────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		viewsURI,
		"All Views",
		mcp.WithMIMEType("application/json"),
	), s.handleViewsResource)

	// ── notesdb://data-source/{id} ─────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			dataSourcePrefix+"{dataSourceId}",
			"Data Source Schema",
		),
		s.handleDataSourceResource,
	)

	// ── notesdb://view/{id} ────────────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			viewPrefix+"{viewId}",
			"View Result",
		),
		s.handleViewResource,
	)
}

func (s *Server) handleViewsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	views, err := s.views.ListViews(ctx, "")
	if err != nil {
		return nil, err
	}

	type viewSummary struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		DataSourceID string `json:"dataSourceId"`
	}
	summaries := make([]viewSummary, 0, len(views))
	for _, v := range views {
		summaries = append(summaries, viewSummary{ID: v.ID, Name: v.Name, DataSourceID: v.DataSourceID})
	}
	return jsonContents(viewsURI, summaries)
}

func (s *Server) handleDataSourceResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := idFromURI(req.Params.URI, dataSourcePrefix)
	if err != nil {
		return nil, err
	}
	ds, err := s.views.Properties(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, ds)
}

func (s *Server) handleViewResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := idFromURI(req.Params.URI, viewPrefix)
	if err != nil {
		return nil, err
	}
	res, err := s.views.QueryView(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, res)
}

func idFromURI(uri, prefix string) (string, error) {
	id := strings.Trim(strings.TrimPrefix(uri, prefix), "/")
	if !strings.HasPrefix(uri, prefix) || id == "" {
		return "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	return id, nil
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
