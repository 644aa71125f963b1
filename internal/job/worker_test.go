package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	calls atomic.Int64
	err   error
}

func (p *stubProcessor) Process(_ context.Context, _ *Job) error {
	p.calls.Add(1)
	return p.err
}

func queueHistory(t *testing.T, repo Repository, symbols ...string) {
	t.Helper()
	for _, s := range symbols {
		require.NoError(t, repo.Create(context.Background(), &Job{Kind: KindHistory, Source: "yahoo", Symbol: s, Status: StatusPending}))
	}
}

// startPool runs pool until the test ends.
func startPool(t *testing.T, pool *WorkerPool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWorkerPool_DrainsQueue(t *testing.T) {
	repo := newMockRepo()
	queueHistory(t, repo, "IAM", "ATW", "BCP")

	proc := &stubProcessor{}
	pool := NewWorkerPool(repo, proc, 2, WithPollInterval(50*time.Millisecond))
	startPool(t, pool)
	pool.Notify()

	require.Eventually(t, func() bool { return proc.calls.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Stats{Processed: 3}, pool.Stats())

	jobs, err := repo.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestWorkerPool_NotifyWakesIdleWorker(t *testing.T) {
	repo := newMockRepo()
	proc := &stubProcessor{}
	// Polling alone would not pick the job up within the test.
	pool := NewWorkerPool(repo, proc, 1, WithPollInterval(time.Minute))
	startPool(t, pool)

	queueHistory(t, repo, "IAM")
	pool.Notify()

	require.Eventually(t, func() bool { return proc.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_CountsFailures(t *testing.T) {
	repo := newMockRepo()
	queueHistory(t, repo, "IAM", "ATW")

	proc := &stubProcessor{err: errors.New("no data")}
	pool := NewWorkerPool(repo, proc, 1, WithPollInterval(20*time.Millisecond))
	startPool(t, pool)

	require.Eventually(t, func() bool { return pool.Stats().Processed == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), pool.Stats().Failed)
}

func TestWorkerPool_StopsOnCancel(t *testing.T) {
	pool := NewWorkerPool(newMockRepo(), &stubProcessor{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewWorkerPool_Defaults(t *testing.T) {
	pool := NewWorkerPool(newMockRepo(), &stubProcessor{}, 0, WithPollInterval(-time.Second))
	assert.Equal(t, 1, pool.workers)
	assert.Equal(t, defaultPollInterval, pool.poll)
}
