package scraper

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Candle is one daily OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is one row of a market-wide snapshot.
type Quote struct {
	Symbol    string
	Name      string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	ChangePct float64
	Volume    float64
}

// Scraper fetches daily candles for a symbol.
type Scraper interface {
	Source() string
	Scrape(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)
}

// SnapshotScraper fetches the current quote of every listed instrument.
type SnapshotScraper interface {
	Source() string
	Snapshot(ctx context.Context) ([]Quote, error)
}

type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]Scraper
}

func NewRegistry() *Registry {
	return &Registry{
		scrapers: make(map[string]Scraper),
	}
}

func (r *Registry) Register(s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[s.Source()] = s
}

func (r *Registry) Get(source string) (Scraper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[source]
	if !ok {
		return nil, fmt.Errorf("scraper not found for source: %s", source)
	}
	return s, nil
}

// Sources lists registered sources alphabetically.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sources := make([]string, 0, len(r.scrapers))
	for src := range r.scrapers {
		sources = append(sources, src)
	}
	slices.Sort(sources)
	return sources
}

// Attempt records one failed upstream try.
type Attempt struct {
	Symbol    string
	UserAgent string
	Err       error
}

// FetchError is returned when every symbol and client variant failed.
type FetchError struct {
	Source   string
	Symbol   string
	Attempts []Attempt
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Symbol, a.Err))
	}
	return fmt.Sprintf("%s: no data for %s after %d attempts (%s)",
		e.Source, e.Symbol, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// ErrNoData marks an upstream answer that carried no rows.
var ErrNoData = errors.New("no data returned")
