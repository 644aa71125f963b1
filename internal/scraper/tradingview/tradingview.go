// Package tradingview reads the Casablanca market snapshot from the
// TradingView scanner API.
package tradingview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mbourse/masi-api/internal/logging"
	"github.com/mbourse/masi-api/internal/platform/httpx"
	"github.com/mbourse/masi-api/internal/scraper"
)

const (
	DefaultEndpoint = "https://scanner.tradingview.com/morocco/scan"
	DefaultPageSize = 150
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Columns requested from the scanner, in row order.
var Columns = []string{"name", "close", "change", "volume", "description", "open", "high", "low"}

type Scraper struct {
	endpoint string
	pageSize int
	workers  int
	client   *http.Client
	policy   httpx.Policy
	log      zerolog.Logger
}

func New(opts ...Option) *Scraper {
	s := &Scraper{
		endpoint: DefaultEndpoint,
		pageSize: DefaultPageSize,
		workers:  3,
		client:   &http.Client{Timeout: 20 * time.Second},
		log:      logging.Named("tradingview"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type Option func(*Scraper)

func WithEndpoint(u string) Option {
	return func(s *Scraper) { s.endpoint = u }
}

// WithPageSize sets how many rows each scan request asks for.
func WithPageSize(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Scraper) { s.workers = n }
}

func WithClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

func WithPolicy(p httpx.Policy) Option {
	return func(s *Scraper) { s.policy = p }
}

func (s *Scraper) Source() string { return "tradingview" }

type scanSort struct {
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

type scanSymbols struct {
	Query struct {
		Types []string `json:"types"`
	} `json:"query"`
	Tickers []string `json:"tickers"`
}

type scanRequest struct {
	Filter  []any             `json:"filter"`
	Options map[string]string `json:"options"`
	Markets []string          `json:"markets"`
	Symbols scanSymbols       `json:"symbols"`
	Columns []string          `json:"columns"`
	Sort    scanSort          `json:"sort"`
	Range   [2]int            `json:"range"`
}

type scanRow struct {
	S string `json:"s"`
	D []any  `json:"d"`
}

type scanResponse struct {
	TotalCount int       `json:"totalCount"`
	Data       []scanRow `json:"data"`
}

func newScanRequest(start, end int) scanRequest {
	req := scanRequest{
		Filter:  []any{},
		Options: map[string]string{"lang": "en"},
		Markets: []string{"morocco"},
		Columns: Columns,
		Sort:    scanSort{SortBy: "name", SortOrder: "asc"},
		Range:   [2]int{start, end},
	}
	req.Symbols.Query.Types = []string{}
	req.Symbols.Tickers = []string{}
	return req
}

// Snapshot returns every quote on the market. The first page reports the
// total row count; remaining pages are fetched concurrently.
func (s *Scraper) Snapshot(ctx context.Context) ([]scraper.Quote, error) {
	first, err := s.fetchPage(ctx, 0, s.pageSize)
	if err != nil {
		return nil, err
	}

	pages := scraper.SplitPages(s.pageSize, first.TotalCount, s.pageSize)
	rest := make([][]scanRow, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))
	for i, p := range pages {
		g.Go(func() error {
			res, err := s.fetchPage(gctx, p.Start, p.End)
			if err != nil {
				return err
			}
			rest[i] = res.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := first.Data
	for _, r := range rest {
		rows = append(rows, r...)
	}

	quotes := make([]scraper.Quote, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		q, ok := ParseRow(row.D)
		if !ok || seen[q.Symbol] {
			continue
		}
		seen[q.Symbol] = true
		quotes = append(quotes, q)
	}

	s.log.Info().Int("total", first.TotalCount).Int("pages", len(pages)+1).
		Int("quotes", len(quotes)).Msg("retrieved market snapshot")
	return quotes, nil
}

func (s *Scraper) fetchPage(ctx context.Context, start, end int) (*scanResponse, error) {
	body, err := json.Marshal(newScanRequest(start, end))
	if err != nil {
		return nil, fmt.Errorf("encode scan request: %w", err)
	}

	res, err := s.policy.Do(ctx, s.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rows %d-%d: %w", start, end, err)
	}
	defer func() { _ = res.Body.Close() }()

	var out scanResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse scan response: %w", err)
	}
	return &out, nil
}

// ParseRow maps a scanner row laid out as Columns onto a Quote. Rows with
// fewer than len(Columns) cells or no symbol are rejected. Numeric cells
// that are null or unreadable count as zero.
func ParseRow(d []any) (scraper.Quote, bool) {
	if len(d) < len(Columns) {
		return scraper.Quote{}, false
	}
	symbol := strings.TrimSpace(text(d[0]))
	if symbol == "" {
		return scraper.Quote{}, false
	}
	name := strings.TrimSpace(text(d[4]))
	if name == "" {
		name = symbol
	}
	return scraper.Quote{
		Symbol:    symbol,
		Name:      name,
		Price:     number(d[1]),
		ChangePct: number(d[2]),
		Volume:    number(d[3]),
		Open:      number(d[5]),
		High:      number(d[6]),
		Low:       number(d[7]),
	}, true
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func number(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	}
	return 0
}
