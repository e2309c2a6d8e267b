// Package batch drains pending URLs through the page scraper in bounded,
// sequential groups under a wall-clock budget.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/price-monitor/internal/metrics"
	"github.com/maltedev/price-monitor/internal/models"
)

const (
	DefaultMaxPerRun  = 2000
	DefaultGroupSize  = 50
	DefaultTimeBudget = 9 * time.Minute
)

// ErrRunInProgress is returned when RunBatch is called while another run on
// the same Runner has not finished.
var ErrRunInProgress = errors.New("batch run already in progress")

// Store is the URL and result persistence the runner needs.
type Store interface {
	// PendingURLs returns up to limit pending URLs, oldest first.
	PendingURLs(ctx context.Context, limit int) ([]models.URL, error)
	// ClaimURL moves a URL from pending to processing. It reports false when
	// the URL was no longer pending.
	ClaimURL(ctx context.Context, id string) (bool, error)
	// CompleteAttempt writes the result and the URL status patch as one unit.
	CompleteAttempt(ctx context.Context, urlID string, outcome models.Outcome) error
	// MarkFailed sets only the URL status to error.
	MarkFailed(ctx context.Context, id string, message string) error
	CountPending(ctx context.Context) (int, error)
}

type PageScraper interface {
	ScrapePage(ctx context.Context, url, knownProvider string) models.Outcome
}

type Options struct {
	MaxPerRun  int
	GroupSize  int
	TimeBudget time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxPerRun:  DefaultMaxPerRun,
		GroupSize:  DefaultGroupSize,
		TimeBudget: DefaultTimeBudget,
	}
}

type Runner struct {
	store   Store
	scraper PageScraper
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

func NewRunner(store Store, scraper PageScraper, opts Options, m *metrics.Metrics, logger *slog.Logger) *Runner {
	def := DefaultOptions()
	if opts.MaxPerRun <= 0 {
		opts.MaxPerRun = def.MaxPerRun
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = def.GroupSize
	}
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = def.TimeBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:   store,
		scraper: scraper,
		opts:    opts,
		metrics: m,
		logger:  logger.With("component", "batch"),
		now:     time.Now,
	}
}

type attempt int

const (
	skipped attempt = iota
	succeeded
	failed
)

// RunBatch processes up to limit pending URLs (MaxPerRun when limit is not
// positive or larger). Groups run one after another; the time budget is only
// checked between groups, so a started group always finishes.
func (r *Runner) RunBatch(ctx context.Context, mode models.Mode, limit int) (models.Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return models.Summary{Mode: mode}, ErrRunInProgress
	}
	defer r.running.Store(false)

	start := r.now()
	summary := models.Summary{Mode: mode}

	if limit <= 0 || limit > r.opts.MaxPerRun {
		limit = r.opts.MaxPerRun
	}

	urls, err := r.store.PendingURLs(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("load pending urls: %w", err)
	}

	r.logger.Info("batch started", "mode", mode, "pending", len(urls), "group_size", r.opts.GroupSize)

	for offset := 0; offset < len(urls); offset += r.opts.GroupSize {
		if elapsed := r.now().Sub(start); elapsed > r.opts.TimeBudget {
			r.logger.Warn("time budget exceeded, stopping batch",
				"elapsed", elapsed, "budget", r.opts.TimeBudget, "unprocessed", len(urls)-offset)
			break
		}
		if ctx.Err() != nil {
			r.logger.Warn("batch cancelled", "unprocessed", len(urls)-offset)
			break
		}

		end := min(offset+r.opts.GroupSize, len(urls))
		for _, res := range r.runGroup(ctx, urls[offset:end]) {
			switch res {
			case succeeded:
				summary.Processed++
				summary.Succeeded++
			case failed:
				summary.Processed++
				summary.Errors++
			}
		}
	}

	remaining, err := r.store.CountPending(context.WithoutCancel(ctx))
	if err != nil {
		r.logger.Error("failed to count pending urls", "error", err)
		remaining = len(urls) - summary.Processed
	}
	summary.Remaining = remaining

	duration := r.now().Sub(start)
	summary.DurationMs = duration.Milliseconds()
	r.metrics.ObserveBatch(string(mode), duration)

	r.logger.Info("batch finished",
		"mode", mode,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"errors", summary.Errors,
		"remaining", summary.Remaining,
		"duration_ms", summary.DurationMs,
	)
	return summary, nil
}

// runGroup scrapes every URL of the group concurrently and waits for all.
// Cancelling ctx does not reach fetches already started; each fetch is bounded
// by its own timeout and the runner stops before the next group instead.
func (r *Runner) runGroup(ctx context.Context, group []models.URL) []attempt {
	ctx = context.WithoutCancel(ctx)
	results := make([]attempt, len(group))
	var g errgroup.Group
	for i, u := range group {
		i, u := i, u
		g.Go(func() error {
			results[i] = r.process(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// process runs one claim, scrape and write cycle. Writes are detached from ctx
// so a shutdown never leaves a claimed URL without its result.
func (r *Runner) process(ctx context.Context, u models.URL) attempt {
	defer r.metrics.TrackInFlight()()
	writeCtx := context.WithoutCancel(ctx)
	log := r.logger.With("url_id", u.ID, "url", u.Address)

	claimed, err := r.store.ClaimURL(writeCtx, u.ID)
	if err != nil {
		log.Error("failed to claim url", "error", err)
		r.metrics.IncProcessed(string(models.URLError))
		return failed
	}
	if !claimed {
		log.Debug("url no longer pending, skipping")
		return skipped
	}

	outcome := r.scrape(ctx, u)

	if err := r.store.CompleteAttempt(writeCtx, u.ID, outcome); err != nil {
		log.Error("failed to store scrape result", "error", err)
		if markErr := r.store.MarkFailed(writeCtx, u.ID, "store result: "+err.Error()); markErr != nil {
			log.Error("failed to mark url as failed", "error", markErr)
		}
		r.metrics.IncProcessed(string(models.URLError))
		return failed
	}

	if !outcome.Succeeded() {
		r.metrics.IncProcessed(string(models.URLError))
		return failed
	}
	r.metrics.IncProcessed(string(models.URLDone))
	return succeeded
}

// scrape converts a panic inside the scraper into an error outcome.
func (r *Runner) scrape(ctx context.Context, u models.URL) (out models.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("scrape panicked", "url_id", u.ID, "panic", p)
			out = models.Outcome{
				URL:       u.Address,
				Provider:  u.Provider,
				Status:    models.ScrapeError,
				Timestamp: r.now(),
				Error:     fmt.Sprintf("unexpected error: %v", p),
			}
		}
	}()
	return r.scraper.ScrapePage(ctx, u.Address, u.Provider)
}
