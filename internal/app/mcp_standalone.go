package app

import (
	"context"
	"time"

	mcpserver "notesdb/internal/mcp"
)

// ServeMCP runs a standalone MCP server on stdin/stdout until the client
// disconnects. Refresh jobs run in the background meanwhile.
func (a *App) ServeMCP(ctx context.Context, version string) error {
	a.StartWatchers(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		a.Shutdown(shutdownCtx)
	}()

	srv := mcpserver.New(mcpserver.Deps{
		Views:   a.Views,
		Refresh: a.Refresh,
		Version: version,
		Log:     a.log,
	})
	return srv.ServeStdio()
}
