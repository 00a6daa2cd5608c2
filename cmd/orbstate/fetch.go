package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbstate/internal/celestrak"
	"github.com/star/orbstate/internal/metrics"
)

type fetchFlags struct {
	catnr   []int
	names   []string
	groups  []string
	json    bool
	out     string
	offline bool
}

func newFetchCmd(a *app) *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download element sets from CelesTrak",
		Long: `Queries CelesTrak's GP endpoint by catalog number, name or group and
writes the response. Several queries are fetched in parallel and
concatenated, the first one being required. When fetch.cache_dir is set the
response is also kept on disk, and --offline reads the newest cached copy.`,
		Example: `  orbstate fetch --catnr 25544
  orbstate fetch --group stations --catnr 5 -o stations.tle
  orbstate fetch --name "ISS (ZARYA)" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.IntSliceVar(&f.catnr, "catnr", nil, "NORAD catalog number (repeatable)")
	fl.StringArrayVar(&f.names, "name", nil, "satellite name (repeatable)")
	fl.StringArrayVar(&f.groups, "group", nil, "CelesTrak group, e.g. stations (repeatable)")
	fl.BoolVar(&f.json, "json", false, "request FORMAT=JSON instead of TLE text")
	fl.StringVarP(&f.out, "out", "o", "", "output file (default stdout)")
	fl.BoolVar(&f.offline, "offline", false, "print the newest cached response instead of fetching")
	return cmd
}

func (f fetchFlags) queries() []celestrak.Query {
	var qs []celestrak.Query
	for _, n := range f.catnr {
		qs = append(qs, celestrak.ByCatalogNumber(n))
	}
	for _, n := range f.names {
		qs = append(qs, celestrak.ByName(n))
	}
	for _, g := range f.groups {
		qs = append(qs, celestrak.ByGroup(g))
	}
	return qs
}

func runFetch(cmd *cobra.Command, a *app, f fetchFlags) error {
	cfg := a.cfg
	var cache *celestrak.Cache
	if cfg.Fetch.CacheDir != "" {
		cache = celestrak.NewCache(cfg.Fetch.CacheDir, cfg.Fetch.MaxCacheFiles)
	}

	var data []byte
	if f.offline {
		if cache == nil {
			return fmt.Errorf("--offline needs fetch.cache_dir")
		}
		cached, entry, err := cache.LoadLatest()
		if err != nil {
			return err
		}
		metrics.RecordFetch("cache", "cache")
		a.logger.Info("using cached response", "dir", cache.Dir(), "cached_at", entry.FetchedAt.Format(time.RFC3339), "format", string(entry.Format), "bytes", len(cached))
		data = cached
	} else {
		qs := f.queries()
		if len(qs) == 0 {
			return fmt.Errorf("give at least one of --catnr, --name or --group")
		}
		opts, err := cfg.ClientOptions()
		if err != nil {
			return err
		}
		if f.json {
			opts.Format = celestrak.FormatJSON
		}
		client := celestrak.NewClient(opts, a.logger)

		start := time.Now()
		data, err = client.FetchAll(cmd.Context(), qs[0], qs[1:]...)
		if err != nil {
			return err
		}
		a.logger.Info("fetch complete", "queries", len(qs), "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())

		if cache != nil {
			entry, err := cache.Write(data, time.Now(), client.Format())
			if err != nil {
				a.logger.Warn("caching response failed", "error", err)
			} else {
				a.logger.Debug("response cached", "path", entry.Path)
			}
		}
	}

	if f.out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(f.out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.out, err)
	}
	return nil
}
