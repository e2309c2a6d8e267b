// Package app wires configuration into the store, fetcher, runner and relay
// shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/price-monitor/internal/api"
	"github.com/maltedev/price-monitor/internal/batch"
	"github.com/maltedev/price-monitor/internal/browser"
	"github.com/maltedev/price-monitor/internal/config"
	"github.com/maltedev/price-monitor/internal/database"
	"github.com/maltedev/price-monitor/internal/metrics"
	"github.com/maltedev/price-monitor/internal/ratelimit"
	"github.com/maltedev/price-monitor/internal/scraper"
	"github.com/maltedev/price-monitor/internal/storage"
)

// Store is everything the runner and the API need from persistence.
type Store interface {
	batch.Store
	api.Store
}

type App struct {
	Config  *config.Config
	Store   Store
	Scraper *scraper.Scraper
	Runner  *batch.Runner
	Metrics *metrics.Metrics
	// Relay is nil unless the postgres store runs with REDIS_ADDR set.
	Relay  *database.Relay
	Outbox api.OutboxMonitor

	logger  *slog.Logger
	closers []func()
}

func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		logger:  logger,
	}

	if err := a.buildStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	fetcher, err := a.buildFetcher()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Scraper = scraper.New(fetcher, nil, logger)
	a.Runner = batch.NewRunner(a.Store, a.Scraper, batch.Options{
		MaxPerRun:  cfg.Batch.MaxPerRun,
		GroupSize:  cfg.Batch.GroupSize,
		TimeBudget: cfg.Batch.TimeBudget,
	}, a.Metrics, logger)

	return a, nil
}

func (a *App) buildStore(ctx context.Context) error {
	cfg := a.Config

	if cfg.Store.Driver == config.StoreFile {
		fs, err := storage.NewFileStore(cfg.Store.FilePath)
		if err != nil {
			return fmt.Errorf("failed to open file store: %w", err)
		}
		a.Store = fs
		a.logger.Info("using file store", "path", cfg.Store.FilePath)
		return nil
	}

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	if cfg.Database.AutoMigrate {
		version, dirty, err := database.RunMigrations(db)
		if err != nil {
			return err
		}
		a.logger.Info("migrations applied", "version", version, "dirty", dirty)
	}

	stream := ""
	if cfg.Redis.Addr != "" {
		stream = cfg.Redis.Stream
	}
	store := database.NewStore(db, stream)
	a.Store = store

	if stream == "" {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = redisClient.Close() })

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.Relay = database.NewRelay(db, redisClient, a.Metrics, a.logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})
	a.Outbox = store
	return nil
}

func (a *App) buildFetcher() (scraper.Fetcher, error) {
	cfg := a.Config

	if cfg.Scraper.FetchMode == config.FetchBrowser {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Browser.Headless
		opts.Timeout = cfg.Browser.Timeout
		opts.UserAgent = cfg.Scraper.UserAgent
		opts.Locale = cfg.Browser.Locale
		opts.TimezoneID = cfg.Browser.TimezoneID

		b, err := browser.New(opts, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := b.Close(); err != nil {
				a.logger.Error("failed to close browser", "error", err)
			}
		})
		return scraper.NewBrowserFetcher(b, cfg.Scraper.FetchTimeout, a.Metrics), nil
	}

	var limiter *ratelimit.HostLimiter
	if cfg.Scraper.HostDelayMax > 0 {
		limiter = ratelimit.NewHostLimiter(cfg.Scraper.HostDelayMin, cfg.Scraper.HostDelayMax)
	}
	return scraper.NewHTTPFetcher(scraper.HTTPOptions{
		Timeout:      cfg.Scraper.FetchTimeout,
		UserAgent:    cfg.Scraper.UserAgent,
		MaxBodyBytes: cfg.Scraper.MaxBodyBytes,
		Limiter:      limiter,
		Metrics:      a.Metrics,
	}), nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	var preview api.Previewer = a.Scraper
	if ttl := a.Config.Scraper.PreviewCacheTTL; ttl > 0 {
		preview = scraper.NewPreviewCache(a.Scraper, ttl)
	}
	h := api.NewHandlers(a.Store, a.Runner, preview, a.logger)
	return api.NewRouter(h, api.RouterOptions{
		Registry: a.Metrics.Registry,
		Outbox:   a.Outbox,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
