package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbourse/masi-api/internal/platform/httpx"
	"github.com/mbourse/masi-api/internal/scraper"
)

// fakeYahoo serves cookie, crumb and chart endpoints. charts maps an upstream
// symbol to its response; unknown symbols get a chart "Not Found" error.
type fakeYahoo struct {
	mu        sync.Mutex
	charts    map[string]chartResponse
	blockedUA map[string]bool
	requested []string
}

func (f *fakeYahoo) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "test-session"})
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test-crumb-123"))
	})

	mux.HandleFunc("/chart/", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/chart/")
		f.mu.Lock()
		f.requested = append(f.requested, symbol+"|"+r.UserAgent())
		blocked := f.blockedUA[r.UserAgent()]
		resp, ok := f.charts[symbol]
		f.mu.Unlock()

		q := r.URL.Query()
		assert.Equal(t, "test-crumb-123", q.Get("crumb"))
		assert.Equal(t, "1d", q.Get("interval"))

		if blocked {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if !ok {
			resp = chartResponse{}
			resp.Chart.Error = &chartError{Code: "Not Found", Description: "No data found, symbol may be delisted"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestScraper(t *testing.T, f *fakeYahoo, opts ...Option) *Scraper {
	t.Helper()
	ts := httptest.NewServer(f.handler(t))
	t.Cleanup(ts.Close)

	base := []Option{
		WithWorkers(1),
		WithClient(ts.Client()),
		WithChartEndpoint(ts.URL + "/chart"),
		WithCookieURL(ts.URL + "/cookie"),
		WithCrumbURL(ts.URL + "/crumb"),
		WithPolicy(httpx.Policy{Retries: 1, InitialInterval: time.Millisecond}),
	}
	return New(append(base, opts...)...)
}

func chart(timestamps []int64, q chartQuote) chartResponse {
	var resp chartResponse
	r := chartResult{Timestamp: timestamps}
	r.Indicators.Quote = []chartQuote{q}
	resp.Chart.Result = []chartResult{r}
	return resp
}

var (
	jan1  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

func TestScrape_OHLCV(t *testing.T) {
	f := &fakeYahoo{charts: map[string]chartResponse{
		"IAM.CS": chart([]int64{1704153600, 1704240000}, chartQuote{
			Open:   []any{100.0, 101.0},
			High:   []any{102.0, nil},
			Low:    []any{99.0, 100.5},
			Close:  []any{101.5, 101.2},
			Volume: []any{1200.0, nil},
		}),
	}}
	s := newTestScraper(t, f)

	candles, err := s.Scrape(context.Background(), "IAM", jan1, jan31)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, scraper.Candle{
		Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 100, High: 102, Low: 99, Close: 101.5, Volume: 1200,
	}, candles[0])
	assert.Equal(t, 101.2, candles[1].High, "missing high takes the close")
	assert.Zero(t, candles[1].Volume)
}

func TestScrape_NullCloseValues(t *testing.T) {
	f := &fakeYahoo{charts: map[string]chartResponse{
		"IAM.CS": chart([]int64{1704153600, 1704240000, 1704326400}, chartQuote{
			Close: []any{185.01, nil, 184.25},
		}),
	}}
	candles, err := newTestScraper(t, f).Scrape(context.Background(), "IAM", jan1, jan31)
	require.NoError(t, err)
	assert.Len(t, candles, 2)
}

func TestScrape_FallsBackToBareSymbol(t *testing.T) {
	f := &fakeYahoo{charts: map[string]chartResponse{
		"MASI": chart([]int64{1704153600}, chartQuote{Close: []any{12000.0}}),
	}}
	candles, err := newTestScraper(t, f).Scrape(context.Background(), "masi", jan1, jan31)
	require.NoError(t, err)
	require.Len(t, candles, 1)

	require.Len(t, f.requested, 2)
	assert.True(t, strings.HasPrefix(f.requested[0], "MASI.CS|"))
	assert.True(t, strings.HasPrefix(f.requested[1], "MASI|"))
}

func TestScrape_UserAgentFallback(t *testing.T) {
	f := &fakeYahoo{
		charts:    map[string]chartResponse{"IAM.CS": chart([]int64{1704153600}, chartQuote{Close: []any{100.0}})},
		blockedUA: map[string]bool{"ua-one": true},
	}
	s := newTestScraper(t, f, WithUserAgents("ua-one", "ua-two"))

	candles, err := s.Scrape(context.Background(), "IAM", jan1, jan31)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Equal(t, []string{"IAM.CS|ua-one", "IAM.CS|ua-two"}, f.requested)
}

func TestScrape_FetchErrorListsAttempts(t *testing.T) {
	f := &fakeYahoo{charts: map[string]chartResponse{
		"IAM": {},
	}}
	s := newTestScraper(t, f, WithUserAgents("ua-one", "ua-two"))

	_, err := s.Scrape(context.Background(), "IAM", jan1, jan31)
	require.Error(t, err)

	var fe *scraper.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "yahoo", fe.Source)
	require.Len(t, fe.Attempts, 2)
	assert.Equal(t, "IAM.CS", fe.Attempts[0].Symbol)
	assert.Contains(t, fe.Attempts[0].Err.Error(), "Not Found")
	assert.Equal(t, "IAM", fe.Attempts[1].Symbol)
	assert.True(t, errors.Is(err, scraper.ErrNoData))
}

func TestScrape_SuffixedSymbolUsedAsGiven(t *testing.T) {
	s := New()
	assert.Equal(t, []string{"IAM.PA"}, s.Candidates("iam.pa"))
	assert.Equal(t, []string{"IAM.CS", "IAM"}, s.Candidates(" iam "))
}

func TestScrape_InvalidInput(t *testing.T) {
	s := New()
	_, err := s.Scrape(context.Background(), "", time.Now(), time.Now())
	require.Error(t, err)

	_, err = s.Scrape(context.Background(), "IAM", jan31, jan1)
	require.Error(t, err)

	_, err = s.Scrape(context.Background(), "IAM", time.Time{}, jan1)
	require.Error(t, err)
}

func TestSource(t *testing.T) {
	assert.Equal(t, "yahoo", New().Source())
}
