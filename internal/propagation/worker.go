package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one (propagator, epoch) unit of work. Index is caller-defined and
// copied to the Result.
type Job struct {
	Index      int
	Propagator *SGP4Propagator
	Target     time.Time
}

// Result is the outcome of a Job.
type Result struct {
	Index int
	State StateVector
	Err   error
}

type slotted struct {
	slot int
	res  Result
}

// WorkerPool runs propagation jobs on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a pool with the given number of workers (at least
// one).
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// Run executes jobs and returns one Result per job, in job order regardless
// of completion order. If ctx is cancelled, Run stops scheduling and returns
// ctx.Err().
func (wp *WorkerPool) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, ctx.Err()
	}

	jobCh := make(chan int, wp.workers*2)
	resultCh := make(chan slotted, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slot := range jobCh {
				job := jobs[slot]
				sv, err := job.Propagator.Propagate(job.Target)
				select {
				case resultCh <- slotted{slot: slot, res: Result{Index: job.Index, State: sv, Err: err}}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for slot := range jobs {
			select {
			case jobCh <- slot:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, len(jobs))
	var okCount, failCount int
	for r := range resultCh {
		results[r.slot] = r.res
		if r.res.State.Status == StatusOk {
			okCount++
		} else {
			failCount++
		}
	}

	if err := ctx.Err(); err != nil {
		wp.logger.Debug("propagation batch cancelled",
			"completed", okCount+failCount,
			"scheduled", len(jobs),
		)
		return nil, err
	}

	wp.logger.Debug("propagation batch complete",
		"ok", okCount,
		"failed", failCount,
		"workers", wp.workers,
	)
	return results, nil
}
