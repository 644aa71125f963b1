package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/job"
	"github.com/mbourse/masi-api/internal/platform/sqlite"
	jobrepo "github.com/mbourse/masi-api/internal/repository/job"
	marketrepo "github.com/mbourse/masi-api/internal/repository/market"
	"github.com/mbourse/masi-api/internal/scraper"
)

type fakeSnapshot struct {
	quotes []scraper.Quote
	err    error
	calls  atomic.Int32
}

func (f *fakeSnapshot) Source() string { return "tradingview" }

func (f *fakeSnapshot) Snapshot(_ context.Context) ([]scraper.Quote, error) {
	f.calls.Add(1)
	return f.quotes, f.err
}

type fakeHistory struct {
	candles []scraper.Candle
	err     error
	symbol  string
}

func (f *fakeHistory) Source() string { return "yahoo" }

func (f *fakeHistory) Scrape(_ context.Context, symbol string, _, _ time.Time) ([]scraper.Candle, error) {
	f.symbol = symbol
	return f.candles, f.err
}

type fixture struct {
	svc      *Service
	market   *marketrepo.Repository
	jobs     *jobrepo.Repository
	snap     *fakeSnapshot
	history  *fakeHistory
	notified atomic.Int32
}

var fixedNow = time.Date(2024, 3, 20, 14, 30, 5, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		market:  marketrepo.NewRepository(db.DB),
		jobs:    jobrepo.NewRepository(db.DB),
		snap:    &fakeSnapshot{},
		history: &fakeHistory{},
	}
	reg := scraper.NewRegistry()
	reg.Register(f.history)

	f.svc = NewService(f.market, f.jobs, f.snap, reg)
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.SetNotify(func() { f.notified.Add(1) })
	return f
}

func TestEnqueueSnapshot_Dedup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.EnqueueSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.KindSnapshot, first.Kind)
	assert.Equal(t, "tradingview", first.Source)
	assert.Equal(t, job.StatusPending, first.Status)

	second, err := f.svc.EnqueueSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), f.notified.Load())
}

func TestEnqueueHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	j, err := f.svc.EnqueueHistory(ctx, HistoryRequest{
		Symbol: " iam ",
		From:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, job.KindHistory, j.Kind)
	assert.Equal(t, "yahoo", j.Source)
	assert.Equal(t, "IAM", j.Symbol)
	assert.Equal(t, "2024-03-20", j.EndDate.Format(dateLayout), "to defaults to today")

	again, err := f.svc.EnqueueHistory(ctx, HistoryRequest{
		Symbol: "IAM",
		From:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:     fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, j.ID, again.ID)
}

func TestEnqueueHistory_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  HistoryRequest
	}{
		{name: "missing symbol", req: HistoryRequest{From: from}},
		{name: "missing from", req: HistoryRequest{Symbol: "IAM"}},
		{name: "inverted range", req: HistoryRequest{Symbol: "IAM", From: from, To: from.AddDate(0, 0, -1)}},
		{name: "unknown source", req: HistoryRequest{Source: "bvc", Symbol: "IAM", From: from}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.EnqueueHistory(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.BadRequest), err.Error())
		})
	}
}

func TestProcess_Snapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.snap.quotes = []scraper.Quote{
		{Symbol: "iam", Name: "Maroc Telecom", Price: 100.5, Open: 99, High: 101, Low: 98.5, ChangePct: 1.234, Volume: 1500.9},
		{Symbol: "ATW", Name: "Attijariwafa", Price: 480, ChangePct: -0.5},
	}

	j, err := f.svc.EnqueueSnapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.RunNow(ctx, j))

	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Equal(t, int64(2), got.RecordsCount)

	rows, err := f.market.CompaniesOn(ctx, "2024-03-20")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ATW", rows[0].Symbol)
	assert.Equal(t, "-0.50%", rows[0].Change)
	assert.Nil(t, rows[0].Open)
	assert.Equal(t, "IAM", rows[1].Symbol)
	assert.Equal(t, "+1.23%", rows[1].Change)
	assert.Equal(t, "1500", rows[1].Volume)
	require.NotNil(t, rows[1].High)
	assert.Equal(t, 101.0, *rows[1].High)

	vars, err := f.market.Variations(ctx, "IAM")
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "2024-03-20 14:30:05", vars[0].Timestamp)
}

func TestProcess_SnapshotFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	j, err := f.svc.EnqueueSnapshot(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.RunNow(ctx, j), errEmptySnapshot)

	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Equal(t, "snapshot returned no quotes", got.Error)

	f.snap.err = errors.New("scanner down")
	j, err = f.svc.EnqueueSnapshot(ctx)
	require.NoError(t, err)
	require.Error(t, f.svc.RunNow(ctx, j))

	got, err = f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "scanner down")
}

func TestProcess_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.history.candles = []scraper.Candle{
		{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 100, High: 102, Low: 99, Close: 101, Volume: 10},
		{Time: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 101, High: 103, Low: 100, Close: 102, Volume: 12},
	}

	j, err := f.svc.EnqueueHistory(ctx, HistoryRequest{Symbol: "IAM", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, f.svc.RunNow(ctx, j))
	assert.Equal(t, "IAM", f.history.symbol)

	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Equal(t, int64(2), got.RecordsCount)

	candles, err := f.market.Candles(ctx, "IAM")
	require.NoError(t, err)
	assert.Len(t, candles, 2)

	// Re-running stores nothing new.
	j.Status = job.StatusPending
	require.NoError(t, f.jobs.Update(ctx, j))
	require.NoError(t, f.svc.RunNow(ctx, j))
	assert.Equal(t, int64(0), j.RecordsCount)
}

func TestProcess_HistoryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.history.err = &scraper.FetchError{Source: "yahoo", Symbol: "IAM", Attempts: []scraper.Attempt{
		{Symbol: "IAM.CS", Err: scraper.ErrNoData},
	}}

	j, err := f.svc.EnqueueHistory(ctx, HistoryRequest{Symbol: "IAM", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	err = f.svc.RunNow(ctx, j)
	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrNoData)

	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "IAM.CS")
}

func TestRunNow_RejectsClaimedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.RunNow(ctx, &job.Job{ID: 7, Status: job.StatusPending})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.Conflict), "unknown job")

	j, err := f.svc.EnqueueSnapshot(ctx)
	require.NoError(t, err)

	// A worker sharing the file takes the job first.
	claimed, err := f.jobs.ClaimPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, j.ID, claimed.ID)

	err = f.svc.RunNow(ctx, j)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.Conflict))
	assert.Zero(t, f.snap.calls.Load(), "claimed job is not processed twice")

	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, got.Status)
}

func TestProcess_UnknownKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	j := &job.Job{Kind: "dividends", Source: "x", Status: job.StatusRunning}
	require.NoError(t, f.jobs.Create(ctx, j))
	require.Error(t, f.svc.Process(ctx, j))
	assert.Equal(t, job.StatusFailed, j.Status)
}

func TestCompanies(t *testing.T) {
	rows := Companies([]scraper.Quote{{Symbol: "bcp", Name: "BCP", Price: 270, ChangePct: 0, Volume: 0}}, "2024-03-20")
	require.Len(t, rows, 1)
	assert.Equal(t, "BCP", rows[0].Symbol)
	assert.Equal(t, "+0.00%", rows[0].Change)
	assert.Equal(t, "0", rows[0].Volume)
	assert.Equal(t, "2024-03-20", rows[0].Date)
}

func TestSources(t *testing.T) {
	assert.Equal(t, []string{"yahoo"}, newFixture(t).svc.Sources())
}

func TestScheduler_EnqueuesOnTick(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		NewScheduler(f.svc, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.notified.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	jobs, err := f.jobs.List(context.Background(), job.Filter{Kind: job.KindSnapshot})
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "pending snapshot is reused")
}

func TestScheduler_Disabled(t *testing.T) {
	f := newFixture(t)
	NewScheduler(f.svc, 0).Run(context.Background())
	assert.Zero(t, f.notified.Load())
}
