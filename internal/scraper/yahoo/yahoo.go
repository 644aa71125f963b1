// Package yahoo implements a scraper for Yahoo Finance daily candles.
// It uses the v8 chart API with cookie + crumb authentication. Casablanca
// listings are tried with the ".CS" suffix first, then as given, and each
// symbol is retried with the next User-Agent when Yahoo rejects the client.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mbourse/masi-api/internal/logging"
	"github.com/mbourse/masi-api/internal/platform/httpx"
	"github.com/mbourse/masi-api/internal/scraper"
)

const (
	defaultChartEndpoint = "https://query2.finance.yahoo.com/v8/finance/chart"
	defaultCookieURL     = "https://fc.yahoo.com"
	defaultCrumbURL      = "https://query1.finance.yahoo.com/v1/test/getcrumb"
	dateFormat           = "2006-01-02"
	chunkDays            = 1250
)

// DefaultUserAgents are tried in order when Yahoo answers 401, 403 or 429.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:132.0) Gecko/20100101 Firefox/132.0",
}

// DefaultSuffixes is the symbol fallback chain for bare tickers.
var DefaultSuffixes = []string{".CS", ""}

// Scraper fetches daily candles from Yahoo Finance.
type Scraper struct {
	workers       int
	client        *http.Client
	chartEndpoint string
	cookieURL     string
	crumbURL      string
	userAgents    []string
	suffixes      []string
	policy        httpx.Policy
	log           zerolog.Logger

	mu      sync.Mutex
	crumb   string
	crumbUA string
}

// New creates a Scraper with the given options applied.
func New(opts ...Option) *Scraper {
	jar, _ := cookiejar.New(nil)
	s := &Scraper{
		workers:       5,
		client:        &http.Client{Jar: jar, Timeout: 30 * time.Second},
		chartEndpoint: defaultChartEndpoint,
		cookieURL:     defaultCookieURL,
		crumbURL:      defaultCrumbURL,
		userAgents:    DefaultUserAgents,
		suffixes:      DefaultSuffixes,
		log:           logging.Named("yahoo"),
	}
	for _, o := range opts {
		o(s)
	}
	// Auth rejections go to the User-Agent fallback instead of backoff.
	s.policy.RetryOn = func(status int) bool {
		return status >= http.StatusInternalServerError && httpx.Retryable(status)
	}
	return s
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithWorkers sets the worker concurrency for parallel chunk fetching.
func WithWorkers(n int) Option {
	return func(s *Scraper) { s.workers = n }
}

// WithClient sets the HTTP client. The client should have a cookie jar.
func WithClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithChartEndpoint overrides the default chart API endpoint.
func WithChartEndpoint(ep string) Option {
	return func(s *Scraper) { s.chartEndpoint = ep }
}

// WithCookieURL overrides the URL used to obtain the session cookie.
func WithCookieURL(u string) Option {
	return func(s *Scraper) { s.cookieURL = u }
}

// WithCrumbURL overrides the URL used to obtain the crumb token.
func WithCrumbURL(u string) Option {
	return func(s *Scraper) { s.crumbURL = u }
}

// WithUserAgents replaces the User-Agent fallback list.
func WithUserAgents(uas ...string) Option {
	return func(s *Scraper) { s.userAgents = uas }
}

// WithSuffixes replaces the symbol suffix fallback chain.
func WithSuffixes(suffixes ...string) Option {
	return func(s *Scraper) { s.suffixes = suffixes }
}

// WithPolicy sets the retry policy for transient upstream failures.
func WithPolicy(p httpx.Policy) Option {
	return func(s *Scraper) { s.policy = p }
}

// Source returns the scraper identifier.
func (s *Scraper) Source() string { return "yahoo" }

type chartQuote struct {
	Open   []any `json:"open"`
	High   []any `json:"high"`
	Low    []any `json:"low"`
	Close  []any `json:"close"`
	Volume []any `json:"volume"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// chartResponse represents the Yahoo Finance v8 chart API response.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

// Candidates returns the upstream symbols tried for symbol, in order.
// Symbols that already carry an exchange suffix are used as given.
func (s *Scraper) Candidates(symbol string) []string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(symbol, ".") || strings.HasPrefix(symbol, "^") {
		return []string{symbol}
	}
	out := make([]string, 0, len(s.suffixes))
	for _, suf := range s.suffixes {
		out = append(out, symbol+suf)
	}
	return out
}

// Scrape fetches daily candles for symbol between from and to. When every
// candidate symbol and User-Agent fails, the error is a *scraper.FetchError
// listing each attempt.
func (s *Scraper) Scrape(ctx context.Context, symbol string, from, to time.Time) ([]scraper.Candle, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if from.IsZero() {
		return nil, fmt.Errorf("start date cannot be empty")
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.After(to) {
		return nil, fmt.Errorf("start date cannot be after end date")
	}

	fe := &scraper.FetchError{Source: s.Source(), Symbol: symbol}
	for _, cand := range s.Candidates(symbol) {
		for _, ua := range s.userAgents {
			candles, err := s.scrapeSymbol(ctx, cand, ua, from, to)
			if err == nil && len(candles) > 0 {
				return candles, nil
			}
			if err == nil {
				err = scraper.ErrNoData
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fe.Attempts = append(fe.Attempts, scraper.Attempt{Symbol: cand, UserAgent: ua, Err: err})

			if !blocked(err) {
				break
			}
			s.resetCrumb()
			s.log.Warn().Err(err).Str("symbol", cand).Msg("yahoo rejected client, trying next user agent")
		}
	}
	return nil, fe
}

func blocked(err error) bool {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

func (s *Scraper) scrapeSymbol(ctx context.Context, symbol, ua string, from, to time.Time) ([]scraper.Candle, error) {
	// Ensure we have a valid crumb before starting parallel fetches.
	if err := s.ensureCrumb(ctx, ua); err != nil {
		return nil, fmt.Errorf("yahoo auth: %w", err)
	}

	chunks := scraper.SplitDateRange(from, to, chunkDays)
	results := make([][]scraper.Candle, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))

	for i, c := range chunks {
		g.Go(func() error {
			candles, err := s.fetchChart(gctx, symbol, ua, c.From, c.To)
			if err != nil {
				return fmt.Errorf("%s %s..%s: %w", symbol, c.From.Format(dateFormat), c.To.Format(dateFormat), err)
			}
			results[i] = candles
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []scraper.Candle
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (s *Scraper) resetCrumb() {
	s.mu.Lock()
	s.crumb = ""
	s.mu.Unlock()
}

// ensureCrumb fetches a session cookie and crumb token for ua if not
// already cached.
func (s *Scraper) ensureCrumb(ctx context.Context, ua string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.crumb != "" && s.crumbUA == ua {
		return nil
	}

	// The cookie endpoint usually answers 404; only the Set-Cookie matters.
	cookieReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cookieURL, nil)
	if err != nil {
		return fmt.Errorf("build cookie request: %w", err)
	}
	cookieReq.Header.Set("User-Agent", ua)

	cookieRes, err := s.client.Do(cookieReq) //nolint:gosec // URL from internal config
	if err != nil {
		return fmt.Errorf("fetch cookie: %w", err)
	}
	_ = cookieRes.Body.Close()

	crumbRes, err := s.policy.Do(ctx, s.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.crumbURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", ua)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("fetch crumb: %w", err)
	}
	defer func() { _ = crumbRes.Body.Close() }()

	body, err := io.ReadAll(crumbRes.Body)
	if err != nil {
		return fmt.Errorf("read crumb: %w", err)
	}

	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return fmt.Errorf("empty crumb received")
	}

	s.crumb = crumb
	s.crumbUA = ua
	s.log.Debug().Int("crumb_len", len(crumb)).Msg("obtained crumb")
	return nil
}

// fetchChart fetches chart data for a single date range chunk.
func (s *Scraper) fetchChart(ctx context.Context, symbol, ua string, from, to time.Time) ([]scraper.Candle, error) {
	s.mu.Lock()
	crumb := s.crumb
	s.mu.Unlock()

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(from.Unix(), 10))
	q.Set("period2", strconv.FormatInt(to.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "div,splits")
	q.Set("crumb", crumb)
	reqURL := s.chartEndpoint + "/" + url.PathEscape(symbol) + "?" + q.Encode()

	res, err := s.policy.Do(ctx, s.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", ua)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var resp chartResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse yahoo response: %w", err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}

	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	candles := parseResult(resp.Chart.Result[0])
	s.log.Info().Str("symbol", symbol).
		Str("from", from.Format(dateFormat)).Str("to", to.Format(dateFormat)).
		Int("count", len(candles)).Msg("retrieved yahoo data")
	return candles, nil
}

// parseResult turns the column arrays into candles. Points without a close
// are skipped; a missing open, high or low takes the close.
func parseResult(r chartResult) []scraper.Candle {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	candles := make([]scraper.Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		closeVal, ok := at(q.Close, i)
		if !ok {
			continue
		}
		c := scraper.Candle{
			Time:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:  closeVal,
			High:  closeVal,
			Low:   closeVal,
			Close: closeVal,
		}
		if v, ok := at(q.Open, i); ok {
			c.Open = v
		}
		if v, ok := at(q.High, i); ok {
			c.High = v
		}
		if v, ok := at(q.Low, i); ok {
			c.Low = v
		}
		c.Volume, _ = at(q.Volume, i)
		candles = append(candles, c)
	}
	return candles
}

func at(values []any, i int) (float64, bool) {
	if i >= len(values) {
		return 0, false
	}
	return toFloat64(values[i])
}

// toFloat64 converts a JSON number (which may be float64 or json.Number) to float64.
// Returns false for nil values (Yahoo uses null for missing data points).
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
