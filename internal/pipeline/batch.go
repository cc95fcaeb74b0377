package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"facturas/internal/logger"
)

// ProcessBatch runs every input through ProcessOne with at most Workers runs in
// flight. A failed invoice never stops its siblings; the batch returns once every
// run reached a terminal state.
func (o *Orchestrator) ProcessBatch(ctx context.Context, inputs []Input) *BatchResult {
	log := logger.WithComponent("pipeline")
	start := time.Now()

	results := make([]*Result, len(inputs))

	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, in := range inputs {
		g.Go(func() error {
			res, _ := o.ProcessOne(ctx, in)
			results[i] = res

			if o.progress != nil {
				mu.Lock()
				done++
				o.progress(done, len(inputs), res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchResult{Results: results}
	for _, res := range results {
		if res.Err != nil {
			batch.Failed = append(batch.Failed, BatchFailure{Source: res.Source, Err: res.Err})
			continue
		}
		batch.Successful = append(batch.Successful, res)
	}

	log.Info().
		Int("total", len(inputs)).
		Int("successful", len(batch.Successful)).
		Int("failed", len(batch.Failed)).
		Int("workers", o.workers).
		Dur("duration", time.Since(start)).
		Msg("Batch processed")

	return batch
}

// Workers returns the batch concurrency window.
func (o *Orchestrator) Workers() int {
	return o.workers
}
