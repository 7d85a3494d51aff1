// Package collyfetcher fetches a fixed list of pages with gocolly and turns
// them into harvest documents. It never follows links.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/corpus"
	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/metrics"
	"github.com/JakeFAU/cropharvest/internal/policy/ratelimit"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
	// RatePerSecond caps requests per host; zero means unlimited.
	RatePerSecond float64
	Burst         int
	// MaxAttempts bounds fetch attempts per URL; zero means one.
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Response is one fetched page.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Robots     RobotsDecision
}

// Sink receives converted documents.
type Sink interface {
	Enqueue(ctx context.Context, doc harvest.Document) error
}

// Fetcher performs single-page GETs through a Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	robots        *robotsTransport
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	retry         retryPolicy
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	var (
		transport http.RoundTripper = newHTTPTransport()
		robots    *robotsTransport
	)
	if cfg.RespectRobots {
		robots = newRobotsTransport(transport)
		transport = robots
	}
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		robots:        robots,
		baseCollector: c,
		limiter:       ratelimit.New(ratelimit.Config{RPS: cfg.RatePerSecond, Burst: cfg.Burst}),
		retry:         newRetryPolicy(cfg.MaxAttempts, cfg.RetryBackoff),
		logger:        logger.Named("fetcher"),
	}
}

// Fetch executes a single HTTP GET. A page excluded by robots.txt yields an
// error matching colly.ErrRobotsTxtBlocked and a Response whose Robots is
// RobotsDisallowed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &result, &fetchErr); err != nil {
		return Response{URL: rawURL, Robots: f.robotsDecision(hostOf(rawURL), err)}, err
	}
	result.Robots = f.robotsDecision(hostOf(result.URL), nil)
	return result, nil
}

// Pages fetches every URL in order and calls fn for each page that came
// back 2xx. Per-page failures are logged and counted; only an fn failure or
// cancellation stops the loop. It returns the number of pages fn accepted.
func (f *Fetcher) Pages(ctx context.Context, urls []string, fn func(Response) error) (int, error) {
	accepted := 0
	for _, u := range urls {
		if err := f.limiter.Wait(ctx, u); err != nil {
			return accepted, fmt.Errorf("fetch canceled: %w", err)
		}
		resp, err := f.fetchWithRetry(ctx, u)
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			metrics.ObserveDocument(u, "robots_disallowed", 0)
			f.logger.Info("skipped by robots.txt", zap.String("url", u))
			continue
		}
		if err != nil {
			metrics.ObserveDocument(u, "error", 0)
			f.logger.Warn("fetch failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			metrics.ObserveDocument(u, "status_"+strconv.Itoa(resp.StatusCode), len(resp.Body))
			f.logger.Warn("unexpected status", zap.String("url", u), zap.Int("status", resp.StatusCode))
			continue
		}
		if resp.Robots == RobotsAssumed {
			f.logger.Warn("robots.txt unreachable, fetched as allow-all", zap.String("url", resp.URL))
		}
		f.logger.Debug("page fetched",
			zap.String("url", resp.URL),
			zap.Int("bytes", len(resp.Body)),
			zap.Duration("duration", resp.Duration),
			zap.String("robots", string(resp.Robots)),
		)
		if err := fn(resp); err != nil {
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

// Feed fetches every URL and enqueues a document for each 2xx page that
// parses. It returns the number of documents enqueued.
func (f *Fetcher) Feed(ctx context.Context, urls []string, sink Sink) (int, error) {
	parseFailures := 0
	n, err := f.Pages(ctx, urls, func(resp Response) error {
		doc, err := corpus.FromHTML(resp.URL, resp.StatusCode, resp.Body)
		if err != nil {
			parseFailures++
			metrics.ObserveDocument(resp.URL, "parse_error", len(resp.Body))
			f.logger.Warn("parse failed", zap.String("url", resp.URL), zap.Error(err))
			return nil
		}
		metrics.ObserveDocument(resp.URL, "ok", len(resp.Body))
		if err := sink.Enqueue(ctx, harvest.Document{View: doc, Meta: harvest.MetadataFor(resp.URL)}); err != nil {
			return fmt.Errorf("enqueue %s: %w", resp.URL, err)
		}
		return nil
	})
	return n - parseFailures, err
}

func (f *Fetcher) buildCollector(start time.Time, result *Response, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.Request != nil {
			// Non-2xx responses land here; keep them so the caller sees the status.
			*result = Response{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Duration:   time.Since(start),
			}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	rawURL string,
	result *Response,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil && result.StatusCode == 0 {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
