// Package cli provides the notesdb command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"notesdb/internal/app"
	"notesdb/internal/config"
	"notesdb/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

var cfgFile string

type configKey struct{}

type loggerKey struct{}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "notesdb",
		Short: "notesdb - database views with relations, rollups and filters",
		Long: `notesdb evaluates saved database views: relations between data sources,
rollup aggregations over them, simple and advanced filters, sorting and grouping.

It runs as an MCP server for AI agents or as a one-shot CLI.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			log, err := logging.New(logging.Options{
				Level:  cfg.Log.Level,
				File:   cfg.Log.File,
				Pretty: cfg.Log.Pretty,
			})
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, log)
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if log := getLogger(cmd.Context()); log != nil {
				return log.Close()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./notesdb.yaml)")
	pf.String("driver", "", "Storage driver (sqlite|postgres|mysql|mongodb)")
	pf.String("dsn", "", "Storage DSN, file path for sqlite")
	pf.String("database", "", "Database name (mongodb)")
	pf.String("log-level", "", "Log level (trace|debug|info|warn|error|disabled)")
	pf.String("log-file", "", "Append logs to this file instead of stderr")
	pf.Bool("pretty", false, "Human-readable console logs")
	pf.Duration("settings-timeout", 0, "Timeout for persisting view settings")

	_ = rootCmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "postgres", "mysql", "mongodb"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newMCPCommand())
	rootCmd.AddCommand(newViewsCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newRollupCommand())
	rootCmd.AddCommand(newSetCommand())
	rootCmd.AddCommand(newRefreshCommand())
	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newImportCommand())
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func getConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	c := &config.Config{}
	c.ApplyDefaults()
	return c
}

func getLogger(ctx context.Context) *logging.Logger {
	l, _ := ctx.Value(loggerKey{}).(*logging.Logger)
	return l
}

// withApp builds the application for one command and shuts it down after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	log := getLogger(ctx)
	if log == nil {
		return fmt.Errorf("logger not initialized")
	}
	a, err := app.New(ctx, getConfig(ctx), log.Logger, nil)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.WithoutCancel(ctx))
	return fn(ctx, a)
}
