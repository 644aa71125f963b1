package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbourse/masi-api/internal/logging"
)

const defaultPollInterval = 5 * time.Second

// Processor runs a job the pool has already moved to running.
type Processor interface {
	Process(ctx context.Context, j *Job) error
}

// Stats counts jobs handed to the processor since the pool was built.
type Stats struct {
	Processed int64
	Failed    int64
}

// WorkerPool runs refresh jobs queued in the jobs table. Each worker claims
// the oldest pending job, so two pools sharing a database never run the same
// job.
type WorkerPool struct {
	repo      Repository
	processor Processor
	workers   int
	poll      time.Duration
	wake      chan struct{}
	log       zerolog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

type PoolOption func(*WorkerPool)

// WithPollInterval sets how often idle workers look for jobs nobody
// announced through Notify.
func WithPollInterval(d time.Duration) PoolOption {
	return func(wp *WorkerPool) {
		if d > 0 {
			wp.poll = d
		}
	}
}

func NewWorkerPool(repo Repository, processor Processor, workers int, opts ...PoolOption) *WorkerPool {
	wp := &WorkerPool{
		repo:      repo,
		processor: processor,
		workers:   max(workers, 1),
		poll:      defaultPollInterval,
		wake:      make(chan struct{}, 1),
		log:       logging.Named("worker"),
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Notify wakes one idle worker. It never blocks.
func (wp *WorkerPool) Notify() {
	select {
	case wp.wake <- struct{}{}:
	default:
	}
}

func (wp *WorkerPool) Stats() Stats {
	return Stats{Processed: wp.processed.Load(), Failed: wp.failed.Load()}
}

// Run blocks until ctx is done and every worker has returned.
func (wp *WorkerPool) Run(ctx context.Context) {
	wp.log.Info().Int("workers", wp.workers).Dur("poll", wp.poll).Msg("worker pool started")

	var wg sync.WaitGroup
	for id := range wp.workers {
		wg.Go(func() { wp.work(ctx, id) })
	}
	wg.Wait()

	s := wp.Stats()
	wp.log.Info().Int64("processed", s.Processed).Int64("failed", s.Failed).Msg("worker pool stopped")
}

func (wp *WorkerPool) work(ctx context.Context, id int) {
	ticker := time.NewTicker(wp.poll)
	defer ticker.Stop()

	for {
		for wp.next(ctx, id) {
		}

		select {
		case <-ctx.Done():
			return
		case <-wp.wake:
		case <-ticker.C:
		}
	}
}

// next claims and runs one job. It reports false when the queue is empty,
// the claim failed or ctx is done.
func (wp *WorkerPool) next(ctx context.Context, id int) bool {
	if ctx.Err() != nil {
		return false
	}

	j, err := wp.repo.ClaimPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			wp.log.Error().Err(err).Int("worker", id).Msg("claim pending job")
		}
		return false
	}
	if j == nil {
		return false
	}

	l := wp.log.With().Int("worker", id).Int64("job", j.ID).Str("kind", string(j.Kind)).Logger()
	l.Info().Str("source", j.Source).Str("symbol", j.Symbol).Msg("refresh started")

	start := time.Now()
	if err := wp.processor.Process(ctx, j); err != nil {
		wp.failed.Add(1)
		l.Error().Err(err).Dur("took", time.Since(start)).Msg("refresh failed")
	} else {
		l.Info().Int64("records", j.RecordsCount).Dur("took", time.Since(start)).Msg("refresh completed")
	}
	wp.processed.Add(1)
	return true
}
