package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/cropharvest/internal/metrics"
)

// RobotsDecision records how robots.txt governed a fetch.
type RobotsDecision string

// Robots decisions.
const (
	// RobotsIgnored means fetch.respect_robots is off.
	RobotsIgnored RobotsDecision = "ignored"
	RobotsAllowed RobotsDecision = "allowed"
	// RobotsAssumed means the host's robots.txt kept timing out and the page
	// was fetched as if it allowed everything.
	RobotsAssumed    RobotsDecision = "assumed_allow"
	RobotsDisallowed RobotsDecision = "disallowed"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var robotsRetryDelays = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport retries robots.txt requests that time out and, once the
// delays are spent, answers with an allow-all document. Hosts answered that
// way are remembered so later fetches report RobotsAssumed. Other requests
// pass straight through.
type robotsTransport struct {
	next    http.RoundTripper
	delays  []time.Duration
	assumed sync.Map // host -> struct{}
}

func newRobotsTransport(next http.RoundTripper) *robotsTransport {
	return &robotsTransport{next: next, delays: robotsRetryDelays}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.next.RoundTrip(req)
	}
	for attempt := 0; ; attempt++ {
		resp, err := t.next.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !robotsTimedOut(err) {
			return nil, err
		}
		if attempt == len(t.delays) {
			t.assumed.Store(strings.ToLower(req.URL.Host), struct{}{})
			metrics.ObserveRobotsFallback("timeout")
			return allowAllResponse(req), nil
		}
		if err := sleepWithContext(req.Context(), t.delays[attempt]); err != nil {
			return nil, err
		}
	}
}

func (t *robotsTransport) assumedFor(host string) bool {
	_, ok := t.assumed.Load(strings.ToLower(host))
	return ok
}

// robotsDecision classifies a finished fetch from host.
func (f *Fetcher) robotsDecision(host string, err error) RobotsDecision {
	switch {
	case !f.cfg.RespectRobots:
		return RobotsIgnored
	case errors.Is(err, colly.ErrRobotsTxtBlocked):
		return RobotsDisallowed
	case f.robots != nil && f.robots.assumedFor(host):
		return RobotsAssumed
	default:
		return RobotsAllowed
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Request:       req,
	}
}

func robotsTimedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
