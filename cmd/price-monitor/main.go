package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/price-monitor/internal/app"
	"github.com/maltedev/price-monitor/internal/config"
	"github.com/maltedev/price-monitor/internal/scheduler"
	"github.com/maltedev/price-monitor/pkg/logger"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("failed to read .env", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Relay != nil {
		go func() {
			if err := a.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "error", err)
			}
		}()
	}

	if cfg.Batch.AutoInterval > 0 {
		go scheduler.New(a.Runner, cfg.Batch.AutoInterval, log).Start(ctx)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"store", cfg.Store.Driver,
		"fetch_mode", cfg.Scraper.FetchMode,
		"relay", a.Relay != nil)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-shutdownDone
	log.Info("server stopped")
}
