package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbstate/internal/api"
	"github.com/star/orbstate/internal/celestrak"
	"github.com/star/orbstate/internal/config"
	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/health"
	"github.com/star/orbstate/internal/metrics"
	"github.com/star/orbstate/internal/store"
	"github.com/star/orbstate/internal/tle"
)

// ageInterval is how often the dataset age gauge is refreshed.
const ageInterval = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve parsing and assembly over HTTP",
		Long: `Starts the HTTP API. When store.path is set every assembled dataset is
saved to SQLite; the newest dataset is preloaded at startup from the stored
element sets, or from the newest fetch cache file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), a.cfg, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	acfg, err := cfg.AssemblerConfig()
	if err != nil {
		return err
	}
	assembler := dataset.NewAssembler(acfg, logger)
	latest := dataset.NewLatest()
	checker := health.NewChecker(0)

	var saver api.DatasetSaver
	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		saver = st
		checker.Register("store", st.Ping)
	}

	preload(ctx, cfg, logger, assembler, latest, st)

	srv := api.NewServer(api.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MaxEpochs:    cfg.Server.MaxEpochs,
		TrustProxy:   cfg.Server.TrustProxy,
		Parse:        acfg.Parse,
		Auth:         cfg.AuthConfig(),
	}, logger, assembler, latest, saver, checker)

	// Background goroutine to update the dataset age gauge.
	go func() {
		ticker := time.NewTicker(ageInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := latest.AgeSeconds(); age >= 0 {
					metrics.SetDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr, "auth_enabled", cfg.Auth.Enabled, "store", cfg.Store.Path != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// preload assembles the stored or cached element sets at their own epochs so
// /api/v1/datasets/latest answers before the first request. Failures only
// log.
func preload(ctx context.Context, cfg *config.Config, logger *slog.Logger, assembler *dataset.Assembler, latest *dataset.Latest, st *store.Store) {
	blocks, source := loadStartupBlocks(ctx, cfg, logger, st)
	if len(blocks) == 0 {
		logger.Info("starting without a dataset")
		return
	}

	ds, err := assembler.Assemble(ctx, dataset.InputsFromBlocks(blocks, nil))
	if err != nil {
		logger.Warn("preloading dataset failed", "source", source, "error", err)
		return
	}
	latest.Publish(ds)
	logger.Info("preloaded dataset", "source", source, "dataset_id", ds.ID.String(), "rows", len(ds.Rows), "rejected", len(ds.Rejected))
}

func loadStartupBlocks(ctx context.Context, cfg *config.Config, logger *slog.Logger, st *store.Store) ([]tle.Block, string) {
	if st != nil {
		if last, err := st.LatestDataset(ctx); err == nil {
			logger.Info("last stored dataset", "dataset_id", last.ID, "created_at", last.CreatedAt.Format(time.RFC3339), "rows", last.Rows)
		}
		blocks, err := st.LoadBlocks(ctx)
		if err != nil {
			logger.Warn("loading stored element sets failed", "error", err)
		} else if len(blocks) > 0 {
			return blocks, "store"
		}
	}

	if cfg.Fetch.CacheDir == "" {
		return nil, ""
	}
	data, entry, err := celestrak.NewCache(cfg.Fetch.CacheDir, cfg.Fetch.MaxCacheFiles).LoadLatest()
	if err != nil {
		logger.Info("no fetch cache found", "error", err)
		return nil, ""
	}
	blocks, err := tle.ReadAny(bytes.NewReader(data))
	if err != nil {
		logger.Warn("failed to read cached element sets", "error", err)
		return nil, ""
	}
	metrics.RecordFetch("cache", "cache")
	logger.Info("loaded element sets from cache", "count", len(blocks), "cached_at", entry.FetchedAt.Format(time.RFC3339))
	return blocks, "cache"
}
