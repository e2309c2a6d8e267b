package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/maltedev/price-monitor/internal/app"
	"github.com/maltedev/price-monitor/internal/config"
	"github.com/maltedev/price-monitor/internal/database"
	"github.com/maltedev/price-monitor/internal/models"
	"github.com/maltedev/price-monitor/internal/normalize"
	"github.com/maltedev/price-monitor/pkg/logger"
)

type options struct {
	URL     string `short:"u" long:"url" description:"Scrape a single product URL and print the outcome without storing it"`
	Run     bool   `short:"r" long:"run" description:"Run one manual batch over pending URLs"`
	Limit   int    `short:"l" long:"limit" default:"0" description:"Maximum URLs for --run (0 uses BATCH_MAX_PER_RUN)"`
	Import  string `short:"i" long:"import" description:"Add the URLs listed in a text or CSV file"`
	Migrate bool   `long:"migrate" description:"Apply database migrations and exit"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Migrate {
		if err := runMigrations(ctx, cfg, log); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if opts.URL == "" && !opts.Run && opts.Import == "" {
		fmt.Fprintln(os.Stderr, "Nothing to do. Use --url, --run, --import or --migrate.")
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := execute(ctx, a, opts); err != nil {
		log.Error("command failed", "error", err)
		a.Close()
		os.Exit(1)
	}
}

func execute(ctx context.Context, a *app.App, opts options) error {
	if opts.URL != "" {
		if !normalize.IsHTTPURL(opts.URL) {
			return models.ErrInvalidURL
		}
		if err := printJSON(a.Scraper.ScrapePage(ctx, opts.URL, "")); err != nil {
			return err
		}
	}

	if opts.Import != "" {
		data, err := os.ReadFile(opts.Import)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", opts.Import, err)
		}
		urls := normalize.ParseCSVURLs(string(data))
		added, err := a.Store.AddURLs(ctx, urls)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d of %d URLs from %s\n", added, len(urls), opts.Import)
	}

	if opts.Run {
		summary, err := a.Runner.RunBatch(ctx, models.ModeManual, opts.Limit)
		if err != nil {
			return err
		}
		if err := printJSON(summary); err != nil {
			return err
		}
	}

	return nil
}

func runMigrations(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Store.Driver != config.StorePostgres {
		return errors.New("migrations need STORE_DRIVER=postgres")
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
		return err
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	log.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
