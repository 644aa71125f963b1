// Package refresh fills the market tables from upstream providers. It turns
// queued jobs into snapshot and history writes.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/job"
	"github.com/mbourse/masi-api/internal/logging"
	"github.com/mbourse/masi-api/internal/market"
	"github.com/mbourse/masi-api/internal/scraper"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

type Service struct {
	market   market.Repository
	jobs     job.Repository
	snapshot scraper.SnapshotScraper
	registry *scraper.Registry
	notify   func() // optional: wake worker pool
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(marketRepo market.Repository, jobRepo job.Repository, snapshot scraper.SnapshotScraper, registry *scraper.Registry) *Service {
	return &Service{
		market:   marketRepo,
		jobs:     jobRepo,
		snapshot: snapshot,
		registry: registry,
		now:      time.Now,
		log:      logging.Named("refresh"),
	}
}

// SetNotify sets a callback invoked when a new pending job is created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

// Sources lists the registered history providers.
func (s *Service) Sources() []string {
	return s.registry.Sources()
}

// EnqueueSnapshot queues a market snapshot unless one is already pending or
// running, in which case that job is returned.
func (s *Service) EnqueueSnapshot(ctx context.Context) (*job.Job, error) {
	return s.enqueue(ctx, &job.Job{
		Kind:   job.KindSnapshot,
		Source: s.snapshot.Source(),
	})
}

// EnqueueHistory queues a candle backfill for one symbol. An active job for
// the same source, symbol and range is reused.
func (s *Service) EnqueueHistory(ctx context.Context, req HistoryRequest) (*job.Job, error) {
	req.normalize(s.now())
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(req.Source); err != nil {
		return nil, apperror.Wrap(apperror.BadRequest, "unknown source "+req.Source, err)
	}

	return s.enqueue(ctx, &job.Job{
		Kind:      job.KindHistory,
		Source:    req.Source,
		Symbol:    req.Symbol,
		StartDate: req.From,
		EndDate:   req.To,
	})
}

func (s *Service) enqueue(ctx context.Context, probe *job.Job) (*job.Job, error) {
	active, err := s.jobs.FindActive(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	if active != nil {
		return active, nil
	}

	probe.Status = job.StatusPending
	if err := s.jobs.Create(ctx, probe); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify()
	}
	return probe, nil
}

// RunNow processes a freshly enqueued job in the calling goroutine. It
// refuses jobs another process has already claimed.
func (s *Service) RunNow(ctx context.Context, j *job.Job) error {
	ok, err := s.jobs.Claim(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !ok {
		return apperror.New(apperror.Conflict, fmt.Sprintf("job %d is no longer pending", j.ID))
	}
	j.Status = job.StatusRunning
	return s.Process(ctx, j)
}

// Process implements job.Processor. It runs a claimed job and marks it
// completed or failed.
func (s *Service) Process(ctx context.Context, j *job.Job) error {
	var (
		n   int64
		err error
	)
	switch j.Kind {
	case job.KindSnapshot:
		n, err = s.processSnapshot(ctx)
	case job.KindHistory:
		n, err = s.processHistory(ctx, j)
	default:
		err = fmt.Errorf("unknown job kind %q", j.Kind)
	}
	if err != nil {
		return s.failJob(ctx, j, err)
	}

	j.Status = job.StatusCompleted
	j.RecordsCount = n
	j.Error = ""
	_ = s.jobs.Update(ctx, j)
	return nil
}

func (s *Service) failJob(ctx context.Context, j *job.Job, err error) error {
	j.Status = job.StatusFailed
	j.Error = err.Error()
	_ = s.jobs.Update(ctx, j)
	return err
}

var errEmptySnapshot = errors.New("snapshot returned no quotes")

func (s *Service) processSnapshot(ctx context.Context) (int64, error) {
	quotes, err := s.snapshot.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("scrape snapshot: %w", err)
	}
	// An empty scan would wipe today's rows.
	if len(quotes) == 0 {
		return 0, errEmptySnapshot
	}

	now := s.now()
	date := now.Format(dateLayout)
	rows := Companies(quotes, date)

	companies, variations, err := s.market.SaveSnapshot(ctx, date, now.Format(timestampLayout), rows)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}

	s.log.Info().Str("date", date).Int64("companies", companies).
		Int64("variations", variations).Msg("saved market snapshot")
	return companies, nil
}

func (s *Service) processHistory(ctx context.Context, j *job.Job) (int64, error) {
	sc, err := s.registry.Get(j.Source)
	if err != nil {
		return 0, err
	}

	scraped, err := sc.Scrape(ctx, j.Symbol, j.StartDate, j.EndDate)
	if err != nil {
		return 0, fmt.Errorf("scrape: %w", err)
	}

	n, err := s.market.SaveCandles(ctx, Candles(j.Symbol, scraped))
	if err != nil {
		return 0, fmt.Errorf("save candles: %w", err)
	}

	s.log.Info().Str("source", j.Source).Str("symbol", j.Symbol).
		Int64("new", n).Int("total_scraped", len(scraped)).Msg("saved candles")
	return n, nil
}

// Companies maps snapshot quotes onto Company rows for date. Change is a
// signed percentage with two decimals and volume is whole-number text.
// Open, high and low are left null when the provider sent nothing.
func Companies(quotes []scraper.Quote, date string) []market.Company {
	out := make([]market.Company, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, market.Company{
			Symbol: strings.ToUpper(q.Symbol),
			Name:   q.Name,
			Price:  q.Price,
			Open:   positive(q.Open),
			High:   positive(q.High),
			Low:    positive(q.Low),
			Change: fmt.Sprintf("%+.2f%%", q.ChangePct),
			Volume: strconv.FormatInt(int64(q.Volume), 10),
			Date:   date,
		})
	}
	return out
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// Candles maps scraped bars onto stock_history rows keyed by day.
func Candles(symbol string, bars []scraper.Candle) []market.Candle {
	out := make([]market.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, market.Candle{
			Symbol: symbol,
			Time:   b.Time.UTC().Format(dateLayout),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return out
}
