package scraper

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubScraper struct{ source string }

func (s stubScraper) Source() string { return s.source }

func (s stubScraper) Scrape(context.Context, string, time.Time, time.Time) ([]Candle, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(stubScraper{source: "yahoo"})
	r.Register(stubScraper{source: "archive"})

	got := r.Sources()
	if len(got) != 2 || got[0] != "archive" || got[1] != "yahoo" {
		t.Fatalf("Sources() = %v, want [archive yahoo]", got)
	}

	if _, err := r.Get("yahoo"); err != nil {
		t.Errorf("Get(yahoo): %v", err)
	}
	if _, err := r.Get("bvc"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestFetchError(t *testing.T) {
	boom := errors.New("boom")
	fe := &FetchError{
		Source: "yahoo",
		Symbol: "IAM",
		Attempts: []Attempt{
			{Symbol: "IAM.CS", Err: boom},
			{Symbol: "IAM", Err: ErrNoData},
		},
	}

	if !errors.Is(fe, boom) || !errors.Is(fe, ErrNoData) {
		t.Error("FetchError should unwrap to every attempt error")
	}
	want := "yahoo: no data for IAM after 2 attempts (IAM.CS: boom; IAM: no data returned)"
	if fe.Error() != want {
		t.Errorf("Error() = %q, want %q", fe.Error(), want)
	}
}
