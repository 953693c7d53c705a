package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"notesdb/internal/app"
	"notesdb/internal/domain"
	"notesdb/internal/etl"
	"notesdb/internal/storage"
)

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tool server on stdin/stdout",
		Long: `Run notesdb as a Model Context Protocol server over stdio.

Configured refresh jobs run in the background while the server is up.
Logs go to stderr or --log-file; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			a, err := app.New(ctx, getConfig(ctx), getLogger(ctx).Logger, nil)
			if err != nil {
				return err
			}
			return a.ServeMCP(ctx, Version)
		},
	}
}

func newViewsCommand() *cobra.Command {
	var dataSourceID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "views",
		Short: "List saved views",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				views, err := a.Views.ListViews(ctx, dataSourceID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), views)
				}
				renderViews(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dataSourceID, "data-source", "", "Only views of this data source")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newQueryCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "query <view-id>",
		Short: "Run a view and print its records",
		Example: `  # Render a view as a table
  notesdb query v-open-tasks

  # Machine-readable output
  notesdb query v-open-tasks --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Views.QueryView(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				ds, err := a.Views.Properties(ctx, res.DataSourceID)
				if err != nil {
					return err
				}
				renderResult(cmd.OutOrStdout(), a.Views.Evaluator(), ds, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newRollupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollup <data-source-id> <record-id> <property-id>",
		Short: "Compute one rollup value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Views.ComputeRollup(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <view-id> <patch-json>",
		Short: "Change a view's settings and wait for the backend to confirm",
		Example: `  notesdb set v-tasks '{"sorts":[{"propertyId":"due","direction":"asc"}]}'
  notesdb set v-tasks '{"clearGroup":true}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.SettingsPatch
			if err := json.Unmarshal([]byte(args[1]), &patch); err != nil {
				return fmt.Errorf("invalid patch JSON: %w", err)
			}
			if patch.IsEmpty() {
				return fmt.Errorf("patch changes nothing")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Views.ApplySettingsMutation(ctx, args[0], patch)
				if err != nil {
					return err
				}
				state, err := m.Wait(ctx)
				if err != nil {
					return fmt.Errorf("settings %s: %w", state, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "view %s: %s\n", args[0], state)
				return nil
			})
		},
	}
}

func newRefreshCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "refresh [data-source-id...]",
		Short: "Re-fetch data sources, or run the configured refresh jobs with --watch",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watch && len(args) == 0 {
				return fmt.Errorf("give data source ids or --watch")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				for _, id := range args {
					if err := a.Refresh.RefreshNow(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "refreshed %s\n", id)
				}
				if !watch {
					return nil
				}
				ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer cancel()
				a.StartWatchers(ctx)
				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running the configured cron and file-watch jobs")
	return cmd
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <workspace.json>",
		Short: "Load data sources, records, views and members from a JSON dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := storage.LoadWorkspace(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := storage.Seed(ctx, a.Backend(), ws); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d data sources, %d records, %d views, %d members\n",
					len(ws.DataSources), len(ws.Records), len(ws.Views), len(ws.Members))
				return nil
			})
		},
	}
}

func newImportCommand() *cobra.Command {
	var (
		job     etl.ImportJob
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "import <data-source-id> <file>",
		Short: "Load records from a CSV or JSON file into a data source",
		Long: `Import rows from a CSV, TSV or JSON file. Columns map to properties by id,
then by case-insensitive name. Option names are stored as option ids.
Rows with the same key column value update the same record.`,
		Example: `  notesdb import tasks ./tasks.csv
  notesdb import tasks ./export.json --data-path data.items --replace`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job.DataSourceID, job.Path = args[0], args[1]
			job.Mode = etl.SyncAppend
			if replace {
				job.Mode = etl.SyncReplace
			}
			if dataPath, _ := cmd.Flags().GetString("data-path"); dataPath != "" {
				job.SourceCfg = etl.SourceConfig{"dataPath": dataPath}
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Importer.Run(ctx, job)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&job.KeyColumn, "key", "", "Column holding record ids (default id)")
	cmd.Flags().StringVar(&job.TitleColumn, "title", "", "Column holding record titles (default title, then name)")
	cmd.Flags().StringVar(&job.SourceType, "format", "", "Source type (csv_file|json_file), picked by extension when empty")
	cmd.Flags().String("data-path", "", "Dot-separated path to the row array in a JSON file")
	cmd.Flags().BoolVar(&replace, "replace", false, "Delete records missing from the file")
	return cmd
}
