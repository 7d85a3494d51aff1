package collyfetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/gocolly/colly/v2"
)

// retryPolicy retries timeouts and transport failures (resets, refused
// connections, truncated responses) with jittered exponential backoff.
// Cancellation and unknown hosts are never retried.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func newRetryPolicy(maxAttempts int, base time.Duration) retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	return retryPolicy{maxAttempts: maxAttempts, baseDelay: base, maxDelay: 5 * time.Second}
}

func (p retryPolicy) shouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, colly.ErrRobotsTxtBlocked) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false
	}
	return true
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// fetchWithRetry calls Fetch until it succeeds, the policy gives up, or ctx
// ends.
func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) (Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.Fetch(ctx, url)
		if ctx.Err() != nil || !f.retry.shouldRetry(err, attempt) {
			return resp, err
		}
		if err := sleepWithContext(ctx, f.retry.backoff(attempt-1)); err != nil {
			return Response{}, err
		}
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
