package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3, time.Millisecond)
	assert.False(t, p.shouldRetry(nil, 1))
	assert.True(t, p.shouldRetry(errors.New("connection reset"), 1))
	assert.True(t, p.shouldRetry(fmt.Errorf("wrapped: %w", timeoutErr{}), 2))
	assert.False(t, p.shouldRetry(errors.New("connection reset"), 3))
	assert.False(t, p.shouldRetry(fmt.Errorf("x: %w", context.Canceled), 1))
}

func TestRetryPolicyTransportErrors(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3, time.Millisecond)
	eof := &url.Error{Op: "Get", URL: "http://example.test/", Err: io.EOF}
	assert.True(t, p.shouldRetry(fmt.Errorf("colly response failed: %w", eof), 1))

	refused := &url.Error{Op: "Get", URL: "http://127.0.0.1:1/", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	assert.True(t, p.shouldRetry(refused, 1))

	unknown := &url.Error{Op: "Get", URL: "http://nowhere.invalid/", Err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}}
	assert.False(t, p.shouldRetry(unknown, 1))
}

func TestRetryPolicyBackoffIsBounded(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3, 100*time.Millisecond)
	for attempt := 0; attempt < 10; attempt++ {
		d := p.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.maxDelay)
	}
}

func TestFeedRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
				}
			}
			return
		}
		fmt.Fprint(w, `<html><body><h1>Peppers</h1></body></html>`)
	}))
	defer srv.Close()

	f := New(Config{MaxAttempts: 3, RetryBackoff: time.Millisecond}, nil)
	resp, err := f.fetchWithRetry(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}
