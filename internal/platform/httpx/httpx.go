// Package httpx holds the retry policy shared by every upstream HTTP call:
// exponential backoff on transport errors and on 429/500/502/503/504.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultRetries         = 5
	DefaultInitialInterval = 600 * time.Millisecond
)

var retryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// StatusError is returned when the final response has a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

// Retryable reports whether the status is one the policy retries.
func Retryable(status int) bool { return slices.Contains(retryStatuses, status) }

// Policy configures Do. The zero value uses the defaults.
type Policy struct {
	Retries         uint64
	InitialInterval time.Duration
	Limiter         *rate.Limiter
	// RetryOn overrides Retryable for callers that handle some statuses
	// themselves.
	RetryOn func(status int) bool
}

func (p Policy) retryable(status int) bool {
	if p.RetryOn != nil {
		return p.RetryOn(status)
	}
	return Retryable(status)
}

// NewLimiter allows perSecond requests per second with an equal burst.
// A non-positive value disables throttling.
func NewLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	retries := p.Retries
	if retries == 0 {
		retries = DefaultRetries
	}
	initial := p.InitialInterval
	if initial <= 0 {
		initial = DefaultInitialInterval
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)
}

// Do sends the request built by newReq with the default policy.
func Do(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	return Policy{}.Do(ctx, client, newReq)
}

// Do sends the request built by newReq, retrying per the policy. newReq is
// called for every attempt so request bodies can be rebuilt. On success the
// caller owns the response body.
func (p Policy) Do(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	var res *http.Response

	op := func() error {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		r, err := client.Do(req) //nolint:gosec // URLs come from configuration
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		if r.StatusCode >= 200 && r.StatusCode < 300 {
			res = r
			return nil
		}

		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
		statusErr := &StatusError{StatusCode: r.StatusCode, URL: req.URL.Redacted()}
		if p.retryable(r.StatusCode) {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("wait", wait).Msg("upstream request failed, retrying")
	}

	if err := backoff.RetryNotify(op, p.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return res, nil
}
