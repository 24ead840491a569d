package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy configures retry behavior for failed requests.
type RetryPolicy struct {
	MaxRetries int           // Maximum number of retries (2 = 3 total attempts)
	BaseDelay  time.Duration // Initial backoff delay (1s)
	MaxDelay   time.Duration // Maximum backoff cap (30s)
}

// DefaultRetryPolicy returns a RetryPolicy with sensible defaults:
// 2 retries (3 attempts), 1s base delay, 30s max delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// FetchWithRetry wraps FetchPage with exponential backoff. Transient
// failures (network errors, 429, 5xx) are retried; every other status is a
// page outcome and is returned as is. A Retry-After delay sent by the
// server replaces the backoff when it is longer, up to policy.MaxDelay.
func FetchWithRetry(ctx context.Context, client *http.Client, job CrawlJob, cfg Config, policy RetryPolicy) CrawlResult {
	res := FetchPage(ctx, client, job, cfg)
	attempts := 1

	for ; attempts <= policy.MaxRetries && shouldRetry(res); attempts++ {
		wait := max(policy.backoff(attempts), min(res.RetryAfter, policy.MaxDelay))
		if err := sleepCtx(ctx, wait); err != nil {
			if res.Err == nil && res.StatusCode == 0 {
				res.Err = err
			}
			return res
		}
		res = FetchPage(ctx, client, job, cfg)
	}

	if res.Err != nil && attempts > 1 && shouldRetry(res) {
		res.Err = fmt.Errorf("%w (after %d attempts)", res.Err, attempts)
	}
	return res
}

// backoff returns the delay before retry number n (1-based): BaseDelay
// doubled for each earlier retry and capped at MaxDelay.
func (p RetryPolicy) backoff(n int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < n && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	return min(delay, p.MaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Unparsable or past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// shouldRetry reports whether a fetch failed transiently: a retryable
// network error, 429, or any 5xx.
func shouldRetry(res CrawlResult) bool {
	switch {
	case res.StatusCode == 0:
		return isRetryableError(res.Err)
	case res.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return res.StatusCode >= 500
	}
}

// retryablePatterns are error message fragments that indicate transient issues.
var retryablePatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"dns",
	"temporary failure",
}

// isRetryableError checks if an error is worth another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// A cancelled crawl never retries.
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network operation errors (covers timeout, connection refused)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
