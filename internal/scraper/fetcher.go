package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maltedev/price-monitor/internal/metrics"
	"github.com/maltedev/price-monitor/internal/provider"
	"github.com/maltedev/price-monitor/internal/ratelimit"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"
	DefaultMaxBodyBytes = 10 << 20
)

// Fetcher retrieves the raw HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type HTTPOptions struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	Client       *http.Client
	Limiter      *ratelimit.HostLimiter
	Metrics      *metrics.Metrics
}

// HTTPFetcher issues plain GET requests with a per-request timeout.
type HTTPFetcher struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	maxBodyBytes int64
	limiter      *ratelimit.HostLimiter
	metrics      *metrics.Metrics
}

func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &HTTPFetcher{
		client:       opts.Client,
		timeout:      opts.Timeout,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		limiter:      opts.Limiter,
		metrics:      opts.Metrics,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, provider.Host(url)); err != nil {
			return "", f.fail(classify(err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", f.fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "es-AR,es;q=0.9,en;q=0.8")

	f.metrics.IncFetch("http")
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", f.fail(classify(err))
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return "", f.fail(err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return "", f.fail(classify(err))
	}
	f.metrics.ObserveFetch(time.Since(start))
	return string(body), nil
}

func (f *HTTPFetcher) fail(err error) error {
	f.metrics.IncFetchError(ErrorType(err))
	return err
}

// Renderer loads a page in a real browser; *browser.Browser implements it.
type Renderer interface {
	Render(ctx context.Context, url string) (string, int, error)
}

// BrowserFetcher fetches pages through a headless browser.
type BrowserFetcher struct {
	renderer Renderer
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewBrowserFetcher(r Renderer, timeout time.Duration, m *metrics.Metrics) *BrowserFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BrowserFetcher{renderer: r, timeout: timeout, metrics: m}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.metrics.IncFetch("browser")
	start := time.Now()
	html, status, err := f.renderer.Render(ctx, url)
	if err != nil {
		err = classify(err)
		f.metrics.IncFetchError(ErrorType(err))
		return "", err
	}
	if err := statusError(status); err != nil {
		f.metrics.IncFetchError(ErrorType(err))
		return "", err
	}
	f.metrics.ObserveFetch(time.Since(start))
	return html, nil
}
