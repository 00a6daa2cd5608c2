// Command orbstate parses two-line element sets, propagates them with SGP4
// and exports the resulting state vectors.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/star/orbstate/internal/config"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "orbstate",
		Short: "Assemble satellite state vectors from two-line element sets",
		Long: `orbstate parses NORAD two-line element sets, derives orbital elements,
propagates each set with SGP4 to the requested epochs and writes the
resulting dataset as CSV, JSON, XLSX, a binary snapshot or a terminal table.

Configuration is read from an optional YAML file (--config) and ORBSTATE_*
environment variables; the environment wins.

Examples:
  orbstate fetch --catnr 25544 > iss.tle
  orbstate assemble iss.tle --epoch 2025-02-14T12:00:00Z --format table
  orbstate serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			a.cfg = cfg
			a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newAssembleCmd(a), newFetchCmd(a), newServeCmd(a))
	return root
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func main() {
	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "orbstate:", err)
		stop()
		os.Exit(1)
	}
}
