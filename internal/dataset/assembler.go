package dataset

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/star/orbstate/internal/elements"
	"github.com/star/orbstate/internal/metrics"
	"github.com/star/orbstate/internal/propagation"
	"github.com/star/orbstate/internal/tle"
)

// Config holds assembly settings.
type Config struct {
	Propagation propagation.Config
	Parse       tle.ParseOptions

	// SortByKey orders rows by (catalog number, epoch) instead of input order.
	SortByKey bool
}

// Assembler turns inputs into a Dataset. It is safe for concurrent use.
type Assembler struct {
	cfg    Config
	pool   *propagation.WorkerPool
	logger *slog.Logger
	now    func() time.Time
}

// NewAssembler creates an assembler with a worker pool sized by
// cfg.Propagation.Workers.
func NewAssembler(cfg Config, logger *slog.Logger) *Assembler {
	return &Assembler{
		cfg:    cfg,
		pool:   propagation.NewWorkerPool(cfg.Propagation.Workers, logger),
		logger: logger,
		now:    time.Now,
	}
}

// slot locates a job's result within the dataset.
type slot struct {
	row, state int
}

// Assemble parses, de-duplicates, derives and propagates inputs.
//
// Rows follow input order (or key order with SortByKey). Inputs that fail to
// parse or derive, and later duplicates of an already accepted
// (catalog number, epoch), are recorded in Rejected. Propagation failures
// keep their row with the state's Status set. Only context cancellation
// fails the call.
func (a *Assembler) Assemble(ctx context.Context, inputs []Input) (*Dataset, error) {
	ds := &Dataset{
		ID:        uuid.New(),
		CreatedAt: a.now().UTC(),
	}

	seen := make(map[tle.Key]int, len(inputs))
	var jobs []propagation.Job
	var slots []slot

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := a.cfg.Parse.ParseBlock(in.Block)
		if err != nil {
			a.reject(ds, Rejection{
				Stage:         StageParse,
				Name:          in.Block.Name,
				CatalogNumber: parseErrorCatalog(err, in.Block),
				LineNumber:    in.Block.LineNumber,
				Reason:        err.Error(),
			}, slog.LevelWarn)
			continue
		}

		key := rec.Key()
		if first, dup := seen[key]; dup {
			a.reject(ds, Rejection{
				Stage:         StageDuplicate,
				Name:          rec.Name,
				CatalogNumber: rec.CatalogNumber,
				Epoch:         key.Epoch,
				LineNumber:    in.Block.LineNumber,
				Reason:        "duplicate of row " + ds.Rows[first].Key().String(),
			}, slog.LevelDebug)
			continue
		}

		derived, err := elements.ForRecord(rec)
		if err != nil {
			a.reject(ds, Rejection{
				Stage:         StageDerive,
				Name:          rec.Name,
				CatalogNumber: rec.CatalogNumber,
				Epoch:         key.Epoch,
				LineNumber:    in.Block.LineNumber,
				Reason:        err.Error(),
			}, slog.LevelWarn)
			continue
		}

		epochs := in.Epochs
		if len(epochs) == 0 {
			epochs = []time.Time{rec.Epoch}
		}

		rowIdx := len(ds.Rows)
		seen[key] = rowIdx
		row := Row{Record: rec, Derived: derived, States: make([]propagation.StateVector, len(epochs))}

		prop, err := propagation.NewSGP4Propagator(rec, a.cfg.Propagation)
		if err != nil {
			a.logger.Warn("sgp4 init failed",
				"norad_id", rec.CatalogNumber,
				"epoch", key.Epoch,
				"error", err,
			)
			for i, t := range epochs {
				row.States[i] = propagation.StateVector{
					CatalogNumber: rec.CatalogNumber,
					Epoch:         t.UTC(),
					Status:        propagation.StatusNumericDegenerate,
					Error:         err.Error(),
				}
				metrics.RecordPropagation(propagation.StatusNumericDegenerate.String())
			}
			ds.Rows = append(ds.Rows, row)
			continue
		}

		for i, t := range epochs {
			jobs = append(jobs, propagation.Job{Index: len(slots), Propagator: prop, Target: t})
			slots = append(slots, slot{row: rowIdx, state: i})
		}
		ds.Rows = append(ds.Rows, row)
	}
	metrics.RecordParsed(len(ds.Rows))

	start := time.Now()
	results, err := a.pool.Run(ctx, jobs)
	if err != nil {
		return nil, err
	}
	metrics.ObservePropagationBatch(time.Since(start))

	for _, res := range results {
		s := slots[res.Index]
		ds.Rows[s.row].States[s.state] = res.State
		metrics.RecordPropagation(res.State.Status.String())
		a.logPropagation(res)
	}

	if a.cfg.SortByKey {
		slices.SortStableFunc(ds.Rows, func(x, y Row) int {
			if c := cmp.Compare(x.Record.CatalogNumber, y.Record.CatalogNumber); c != 0 {
				return c
			}
			return x.Record.Epoch.Compare(y.Record.Epoch)
		})
	}
	metrics.SetDatasetRows(len(ds.Rows))

	a.logger.Info("dataset assembled",
		"dataset_id", ds.ID.String(),
		"inputs", len(inputs),
		"rows", len(ds.Rows),
		"states", len(jobs),
		"rejected", len(ds.Rejected),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

func (a *Assembler) reject(ds *Dataset, rej Rejection, level slog.Level) {
	ds.Rejected = append(ds.Rejected, rej)
	metrics.RecordRejected(string(rej.Stage))
	a.logger.Log(context.Background(), level, "record rejected",
		"stage", string(rej.Stage),
		"norad_id", rej.CatalogNumber,
		"name", rej.Name,
		"line_index", rej.LineNumber,
		"reason", rej.Reason,
	)
}

func (a *Assembler) logPropagation(res propagation.Result) {
	if res.Err == nil {
		return
	}
	sv := res.State
	if sv.Status == propagation.StatusOk {
		a.logger.Debug("state outside validity window",
			"norad_id", sv.CatalogNumber,
			"epoch", sv.Epoch,
			"minutes_since_epoch", sv.MinutesSinceEpoch,
		)
		return
	}
	a.logger.Warn("propagation failed",
		"norad_id", sv.CatalogNumber,
		"epoch", sv.Epoch,
		"status", sv.Status.String(),
		"error", res.Err,
	)
}

// parseErrorCatalog returns the best known catalog number for a block that
// failed to parse.
func parseErrorCatalog(err error, b tle.Block) int {
	var pe *tle.ParseError
	if errors.As(err, &pe) && pe.CatalogNumber > 0 {
		return pe.CatalogNumber
	}
	return b.CatalogNumber
}
