package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/export"
	"github.com/star/orbstate/internal/metrics"
	"github.com/star/orbstate/internal/report"
	"github.com/star/orbstate/internal/store"
	"github.com/star/orbstate/internal/tle"
)

type assembleFlags struct {
	epochs          []string
	format          string
	out             string
	db              string
	fromDB          bool
	snapshot        string
	metricsTextfile string
	sortByKey       bool
	verifyChecksum  bool
	workers         int
}

func newAssembleCmd(a *app) *cobra.Command {
	var f assembleFlags
	cmd := &cobra.Command{
		Use:   "assemble [file ...]",
		Short: "Parse, propagate and export element sets",
		Long: `Reads TLE text or a JSON GP catalog from the named files ("-" or no
arguments reads stdin), propagates every element set to each --epoch (its
own epoch when none is given) and writes the dataset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssemble(cmd, a, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringArrayVar(&f.epochs, "epoch", nil, "target epoch, RFC 3339 (repeatable)")
	fl.StringVar(&f.format, "format", "", "output format: csv, json, xlsx, snapshot or table")
	fl.StringVarP(&f.out, "out", "o", "", "output file (default stdout)")
	fl.StringVar(&f.db, "db", "", "SQLite database to save the dataset to")
	fl.BoolVar(&f.fromDB, "from-db", false, "also assemble every element set stored in --db")
	fl.StringVar(&f.snapshot, "snapshot", "", "re-assemble the element sets of a snapshot file")
	fl.StringVar(&f.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file when done")
	fl.BoolVar(&f.sortByKey, "sort", false, "order rows by catalog number and epoch instead of input order")
	fl.BoolVar(&f.verifyChecksum, "verify-checksum", false, "reject element lines with a bad checksum")
	fl.IntVar(&f.workers, "workers", 0, "propagation workers (default from config)")
	return cmd
}

func runAssemble(cmd *cobra.Command, a *app, f assembleFlags, args []string) error {
	ctx := cmd.Context()
	cfg := a.cfg
	fl := cmd.Flags()

	if fl.Changed("format") {
		cfg.Output.Format = f.format
	}
	if fl.Changed("out") {
		cfg.Output.Path = f.out
	}
	if fl.Changed("db") {
		cfg.Store.Path = f.db
	}
	if fl.Changed("metrics-textfile") {
		cfg.Metrics.TextfilePath = f.metricsTextfile
	}
	if fl.Changed("sort") {
		cfg.Dataset.SortByKey = f.sortByKey
	}
	if fl.Changed("verify-checksum") {
		cfg.Parse.VerifyChecksum = f.verifyChecksum
	}
	if fl.Changed("workers") {
		cfg.Propagation.Workers = f.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	epochs, err := parseEpochs(f.epochs)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		if st, err = store.Open(ctx, cfg.Store.Path); err != nil {
			return err
		}
		defer st.Close()
	} else if f.fromDB {
		return fmt.Errorf("--from-db needs --db or store.path")
	}

	var inputs []dataset.Input
	if f.snapshot != "" {
		prev, err := readSnapshot(f.snapshot)
		if err != nil {
			return err
		}
		prevInputs := prev.Inputs()
		if len(epochs) > 0 {
			for i := range prevInputs {
				prevInputs[i].Epochs = epochs
			}
		}
		a.logger.Info("loaded snapshot", "dataset_id", prev.ID.String(), "rows", len(prev.Rows), "path", f.snapshot)
		inputs = append(inputs, prevInputs...)
	}

	var blocks []tle.Block
	if f.fromDB {
		stored, err := st.LoadBlocks(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("loaded stored element sets", "count", len(stored), "path", cfg.Store.Path)
		blocks = append(blocks, stored...)
	}
	if len(args) > 0 || (!f.fromDB && f.snapshot == "") {
		read, err := readInputs(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		blocks = append(blocks, read...)
	}

	acfg, err := cfg.AssemblerConfig()
	if err != nil {
		return err
	}
	inputs = append(inputs, dataset.InputsFromBlocks(blocks, epochs)...)
	ds, err := dataset.NewAssembler(acfg, a.logger).Assemble(ctx, inputs)
	if err != nil {
		return err
	}

	if err := writeOutput(cmd.OutOrStdout(), cfg.Output.Path, cfg.Output.Format, ds); err != nil {
		return err
	}

	if st != nil {
		res, err := st.SaveDataset(ctx, ds)
		if err != nil {
			return err
		}
		a.logger.Info("dataset saved", "dataset_id", ds.ID.String(), "records", res.Records, "states", res.States, "path", cfg.Store.Path)
	}

	if cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			return fmt.Errorf("writing metrics textfile: %w", err)
		}
	}
	return nil
}

func parseEpochs(values []string) ([]time.Time, error) {
	epochs := make([]time.Time, 0, len(values))
	for _, v := range values {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("invalid --epoch %q: want RFC 3339, e.g. 2025-02-14T12:00:00Z", v)
		}
		epochs = append(epochs, t.UTC())
	}
	return epochs, nil
}

// readInputs reads element sets from each named file in order; "-" or no
// names reads stdin. Line numbers restart per file.
func readInputs(stdin io.Reader, names []string) ([]tle.Block, error) {
	if len(names) == 0 {
		names = []string{"-"}
	}
	var blocks []tle.Block
	for _, name := range names {
		var (
			got []tle.Block
			err error
		)
		if name == "-" {
			got, err = tle.ReadAny(stdin)
		} else {
			got, err = readFile(name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		blocks = append(blocks, got...)
	}
	return blocks, nil
}

func readFile(path string) ([]tle.Block, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return tle.ReadAny(file)
}

func readSnapshot(path string) (*dataset.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	ds, err := export.ReadSnapshot(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// writeOutput renders ds to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path, format string, ds *dataset.Dataset) (err error) {
	w := stdout
	if path != "" {
		file, cerr := os.Create(path)
		if cerr != nil {
			return fmt.Errorf("creating output: %w", cerr)
		}
		defer func() {
			if cerr := file.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("closing output: %w", cerr)
			}
		}()
		w = file
	}

	if format == "table" {
		return report.Table(w, ds)
	}
	ef, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	return export.Write(w, ef, ds)
}
