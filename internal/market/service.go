package market

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/dates"
	"github.com/mbourse/masi-api/internal/platform/sqlite"
)

const (
	SourceCompany = "Company"
	SourceHistory = "stock_history"
)

type Service struct {
	repo   Repository
	dbPath string
	exists func(path string) bool
}

func NewService(repo Repository, dbPath string) *Service {
	return &Service{repo: repo, dbPath: dbPath, exists: sqlite.Exists}
}

func (s *Service) available() error {
	if !s.exists(s.dbPath) {
		return apperror.New(apperror.Unavailable, "database file not found")
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func companyDate(c Company) string { return c.Date }

func variationTime(v Variation) string { return v.Timestamp }

func candleTime(c Candle) string { return c.Time }

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func (s *Service) Health() HealthResponse {
	return HealthResponse{Status: "ok", DBPath: s.dbPath, Exists: s.exists(s.dbPath)}
}

// Info lists the tables and their row counts. A count that fails is
// reported as null rather than failing the whole call.
func (s *Service) Info(ctx context.Context) (*InfoResponse, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	tables, err := s.repo.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	counts := make(map[string]*int64, len(tables))
	for _, t := range tables {
		n, err := s.repo.CountRows(ctx, t)
		if err != nil {
			counts[t] = nil
			continue
		}
		counts[t] = &n
	}
	return &InfoResponse{DBPath: s.dbPath, Tables: tables, Counts: counts}, nil
}

func (s *Service) Symbols(ctx context.Context) (*SymbolsResponse, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	hist, err := s.repo.HistorySymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("history symbols: %w", err)
	}
	comp, err := s.repo.CompanySymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("company symbols: %w", err)
	}

	all := slices.Concat(hist, comp)
	all = slices.DeleteFunc(all, func(s string) bool { return s == "" })
	slices.Sort(all)
	all = slices.Compact(all)
	return &SymbolsResponse{Count: len(all), Symbols: all}, nil
}

func (s *Service) latestCompanyDate(ctx context.Context) (string, bool, error) {
	ds, err := s.repo.CompanyDates(ctx)
	if err != nil {
		return "", false, fmt.Errorf("company dates: %w", err)
	}
	latest, ok := dates.Latest(ds)
	return latest, ok, nil
}

// LatestSnapshot returns every row of the most recent snapshot date.
func (s *Service) LatestSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	latest, ok, err := s.latestCompanyDate(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &SnapshotResponse{Rows: []Company{}}, nil
	}

	rows, err := s.repo.CompaniesOn(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("companies on %s: %w", latest, err)
	}
	return &SnapshotResponse{Date: &latest, Rows: rows, Count: len(rows)}, nil
}

// Companies lists symbol and name from the latest snapshot, alphabetically.
func (s *Service) Companies(ctx context.Context) (*RowsResponse[Listing], error) {
	snap, err := s.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(snap.Rows))
	for _, c := range snap.Rows {
		name := c.Name
		if name == "" {
			name = c.Symbol
		}
		out = append(out, Listing{Symbol: c.Symbol, Name: name})
	}
	slices.SortFunc(out, func(a, b Listing) int { return strings.Compare(a.Symbol, b.Symbol) })
	return &RowsResponse[Listing]{Count: len(out), Rows: out}, nil
}

// matchDate keeps rows stored for the requested day. Text that parses is
// compared as an instant so "05/03/2024" matches a stored "2024-03-05";
// anything else must match the stored text exactly.
func matchDate(rows []Company, date string) []Company {
	want, ok := dates.Parse(date)
	return slices.DeleteFunc(rows, func(c Company) bool {
		if !ok {
			return c.Date != date
		}
		got, gok := dates.Parse(c.Date)
		return !gok || !got.Equal(want)
	})
}

// QueryCompany reads Company rows newest first, ties by symbol.
func (s *Service) QueryCompany(ctx context.Context, q CompanyQuery) (*RowsResponse[Company], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	rows, err := s.repo.CompanyRows(ctx, normalizeSymbol(q.Symbol))
	if err != nil {
		return nil, fmt.Errorf("company rows: %w", err)
	}
	if q.Date != "" {
		rows = matchDate(rows, strings.TrimSpace(q.Date))
	}

	ranked := dates.RankBy(rows, companyDate, dates.Descending)
	out := page(ranked, q.Offset, q.Limit)
	return &RowsResponse[Company]{Count: len(out), Rows: out}, nil
}

// periodRange covers the days before anchor, anchor included.
func periodRange(anchor time.Time, days int) dates.Range {
	return dates.Range{
		From:    anchor.AddDate(0, 0, -days),
		To:      anchor,
		HasFrom: true,
		HasTo:   true,
	}
}

func latestInstant[T any](items []T, keyFn func(T) string) (time.Time, bool) {
	var (
		best  time.Time
		found bool
	)
	for _, it := range items {
		t, ok := dates.Parse(keyFn(it))
		if ok && (!found || t.After(best)) {
			best, found = t, true
		}
	}
	return best, found
}

// CompanyHistory returns a symbol's snapshots inside a range, newest first.
// A period is anchored at the symbol's latest parseable date and wins over
// explicit from/to bounds.
func (s *Service) CompanyHistory(ctx context.Context, q CompanyHistoryQuery) (*CompanyHistoryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	symbol := normalizeSymbol(q.Symbol)
	rows, err := s.repo.CompanyRows(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("company rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperror.New(apperror.NotFound, "no data for symbol "+symbol)
	}

	resp := &CompanyHistoryResponse{Symbol: symbol}
	var r dates.Range
	if q.Period != "" {
		days, _ := dates.PeriodToDays(q.Period)
		resp.Period = strings.ToLower(q.Period)
		anchor, ok := latestInstant(rows, companyDate)
		if !ok {
			resp.Rows = []Company{}
			return resp, nil
		}
		r = periodRange(anchor, days)
	} else {
		r = dates.NewRange(q.From, q.To)
	}
	if r.HasFrom {
		resp.From = dates.Format(r.From)
	}
	if r.HasTo {
		resp.To = dates.Format(r.To)
	}

	filtered := dates.FilterRangeBy(rows, companyDate, r)
	resp.Rows = dates.RankBy(filtered, companyDate, dates.Descending)
	resp.Count = len(resp.Rows)
	return resp, nil
}

// Variations returns intraday samples for a symbol, newest first.
func (s *Service) Variations(ctx context.Context, q VariationsQuery) (*RowsResponse[Variation], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	rows, err := s.repo.Variations(ctx, normalizeSymbol(q.Symbol))
	if err != nil {
		return nil, fmt.Errorf("variations: %w", err)
	}
	ranked := dates.RankBy(rows, variationTime, dates.Descending)
	out := page(ranked, 0, q.Limit)
	return &RowsResponse[Variation]{Count: len(out), Rows: out}, nil
}

// IndicesLatest reads MASI and MSI20 from the latest snapshot, falling back
// to the two most recent stock_history rows.
func (s *Service) IndicesLatest(ctx context.Context) (*IndicesResponse, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	latest, ok, err := s.latestCompanyDate(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		rows, err := s.repo.CompaniesOn(ctx, latest, Indices...)
		if err != nil {
			return nil, fmt.Errorf("index snapshot: %w", err)
		}
		if len(rows) > 0 {
			return &IndicesResponse{Source: SourceCompany, DateOrTime: latest, Rows: rows}, nil
		}
	}

	candles, err := s.repo.Candles(ctx, Indices...)
	if err != nil {
		return nil, fmt.Errorf("index history: %w", err)
	}
	if len(candles) > 0 {
		top := page(dates.RankBy(candles, candleTime, dates.Descending), 0, 2)
		return &IndicesResponse{Source: SourceHistory, DateOrTime: top[0].Time, Rows: top}, nil
	}

	return nil, apperror.New(apperror.NotFound, "no index data found")
}

// History returns stock_history candles inside the requested range.
func (s *Service) History(ctx context.Context, q HistoryQuery) (*RowsResponse[Candle], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	dir := dates.Ascending
	if q.Order != "" {
		dir, _ = dates.ParseDirection(q.Order)
	}

	rows, err := s.repo.Candles(ctx, normalizeSymbol(q.Symbol))
	if err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	if q.From != "" || q.To != "" {
		rows = dates.FilterRangeBy(rows, candleTime, dates.NewRange(q.From, q.To))
	}

	ranked := dates.RankBy(rows, candleTime, dir)
	out := page(ranked, q.Offset, q.Limit)
	return &RowsResponse[Candle]{Count: len(out), Rows: out}, nil
}

func (s *Service) LatestCandle(ctx context.Context, symbol string) (*Candle, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperror.New(apperror.BadRequest, "symbol is required")
	}

	rows, err := s.repo.Candles(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperror.New(apperror.NotFound, "no data for symbol "+symbol)
	}
	latest := dates.RankBy(rows, candleTime, dates.Descending)[0]
	return &latest, nil
}

// Candles builds a chart series for the period, oldest first. Symbols that
// have no stock_history rows are charted from their daily snapshots.
func (s *Service) Candles(ctx context.Context, q CandlesQuery) (*CandlesResponse, error) {
	if q.Period == "" {
		q.Period = DefaultPeriod
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	symbol := normalizeSymbol(q.Symbol)
	days, _ := dates.PeriodToDays(q.Period)
	resp := &CandlesResponse{Symbol: symbol, Period: strings.ToLower(q.Period), Source: SourceHistory}

	rows, err := s.repo.Candles(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	if len(rows) == 0 {
		snaps, err := s.repo.CompanyRows(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("company rows: %w", err)
		}
		rows = candlesFromSnapshots(snaps)
		resp.Source = SourceCompany
	}
	if len(rows) == 0 {
		return nil, apperror.New(apperror.NotFound, "no data for symbol "+symbol)
	}

	anchor, ok := latestInstant(rows, candleTime)
	if !ok {
		resp.Rows = []Candle{}
		return resp, nil
	}
	filtered := dates.FilterRangeBy(rows, candleTime, periodRange(anchor, days))
	resp.Rows = dates.RankBy(filtered, candleTime, dates.Ascending)
	resp.Count = len(resp.Rows)
	return resp, nil
}

// candlesFromSnapshots charts daily snapshots. Missing open/high/low fall
// back to the snapshot price.
func candlesFromSnapshots(snaps []Company) []Candle {
	out := make([]Candle, 0, len(snaps))
	for _, c := range snaps {
		out = append(out, Candle{
			Symbol: c.Symbol,
			Time:   c.Date,
			Open:   orPrice(c.Open, c.Price),
			High:   orPrice(c.High, c.Price),
			Low:    orPrice(c.Low, c.Price),
			Close:  c.Price,
			Volume: ParseVolume(c.Volume),
		})
	}
	return out
}

func orPrice(v *float64, price float64) float64 {
	if v == nil {
		return price
	}
	return *v
}

// ParseVolume reads volume text such as "12 345" or "1,200". Unreadable
// text counts as zero.
func ParseVolume(text string) float64 {
	clean := strings.NewReplacer(" ", "", ",", "", "\u00a0", "").Replace(text)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return v
}
