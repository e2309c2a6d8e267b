// Package browser renders product pages in headless Chromium for storefronts
// that build their markup client-side.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ExtraHeaders   map[string]string
	// BlockResources lists request resource types (image, font, media...)
	// that are aborted; prices live in the document and scripts.
	BlockResources []string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36",
		ViewportWidth:  1366,
		ViewportHeight: 900,
		AcceptLanguage: "es-AR,es;q=0.9,en;q=0.8",
		TimezoneID:     "America/Argentina/Buenos_Aires",
		Locale:         "es-AR",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		},
		BlockResources: []string{"image", "media", "font"},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	chromium, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     []string{"--disable-dev-shm-usage", "--no-sandbox"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := chromium.NewContext(contextOptions(opts))
	if err != nil {
		_ = chromium.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	b := &Browser{
		pw:      pw,
		browser: chromium,
		context: bctx,
		timeout: opts.Timeout,
		logger:  logger.With("component", "browser"),
	}

	if len(opts.BlockResources) > 0 {
		if err := bctx.Route("**/*", b.blockResources(opts.BlockResources)); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to install request filter: %w", err)
		}
	}

	return b, nil
}

func contextOptions(opts *Options) playwright.BrowserNewContextOptions {
	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	o := playwright.BrowserNewContextOptions{
		AcceptDownloads:  playwright.Bool(false),
		ExtraHttpHeaders: headers,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.UserAgent != "" {
		o.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Locale != "" {
		o.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		o.TimezoneId = playwright.String(opts.TimezoneID)
	}
	return o
}

func (b *Browser) blockResources(types []string) func(playwright.Route) {
	return func(route playwright.Route) {
		var err error
		if slices.Contains(types, route.Request().ResourceType()) {
			err = route.Abort()
		} else {
			err = route.Continue()
		}
		if err != nil {
			b.logger.Debug("request filter failed", "url", route.Request().URL(), "error", err)
		}
	}
}

// Render loads url in a fresh page and returns the rendered HTML and the main
// document's HTTP status. A navigation timeout wraps context.DeadlineExceeded.
func (b *Browser) Render(ctx context.Context, url string) (string, int, error) {
	timeout := navigationTimeout(ctx, b.timeout)
	if timeout <= 0 {
		return "", 0, ctx.Err()
	}

	page, err := b.context.NewPage()
	if err != nil {
		return "", 0, fmt.Errorf("failed to create new page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Warn("failed to close page", "url", url, "error", err)
		}
	}()

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return "", 0, fmt.Errorf("navigate %s: %w: %w", url, context.DeadlineExceeded, err)
	case err != nil:
		return "", 0, fmt.Errorf("navigate %s: %w", url, err)
	}

	status := 0
	if resp != nil {
		status = resp.Status()
	}

	content, err := page.Content()
	if err != nil {
		return "", status, fmt.Errorf("failed to get page content: %w", err)
	}

	b.logger.Debug("page rendered", "url", url, "status", status, "bytes", len(content))
	return content, status, nil
}

// Close shuts down the context, the browser and the driver, reporting every
// failure.
func (b *Browser) Close() error {
	var errs []error
	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}

// navigationTimeout shortens def to the context deadline when that is sooner.
func navigationTimeout(ctx context.Context, def time.Duration) time.Duration {
	if ctx.Err() != nil {
		return 0
	}
	if deadline, ok := ctx.Deadline(); ok {
		return min(time.Until(deadline), def)
	}
	return def
}
