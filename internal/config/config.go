package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"

	FetchHTTP    = "http"
	FetchBrowser = "browser"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Batch    BatchConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Browser  BrowserConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ScraperConfig struct {
	FetchTimeout    time.Duration
	UserAgent       string
	FetchMode       string
	MaxBodyBytes    int64
	HostDelayMin    time.Duration
	HostDelayMax    time.Duration
	PreviewCacheTTL time.Duration
}

type BatchConfig struct {
	MaxPerRun    int
	GroupSize    int
	TimeBudget   time.Duration
	AutoInterval time.Duration
}

type StoreConfig struct {
	Driver   string
	FilePath string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

// RedisConfig configures the outbox relay; an empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type BrowserConfig struct {
	Headless   bool
	Timeout    time.Duration
	Locale     string
	TimezoneID string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			FetchTimeout:    getEnvDuration("SCRAPER_FETCH_TIMEOUT", 20*time.Second),
			UserAgent:       getEnv("SCRAPER_USER_AGENT", defaultUserAgent),
			FetchMode:       getEnv("SCRAPER_FETCH_MODE", FetchHTTP),
			MaxBodyBytes:    int64(getEnvInt("SCRAPER_MAX_BODY_BYTES", 10<<20)),
			HostDelayMin:    getEnvDuration("SCRAPER_HOST_DELAY_MIN", 0),
			HostDelayMax:    getEnvDuration("SCRAPER_HOST_DELAY_MAX", 0),
			PreviewCacheTTL: getEnvDuration("SCRAPER_PREVIEW_CACHE_TTL", time.Minute),
		},
		Batch: BatchConfig{
			MaxPerRun:    getEnvInt("BATCH_MAX_PER_RUN", 2000),
			GroupSize:    getEnvInt("BATCH_GROUP_SIZE", 50),
			TimeBudget:   getEnvDuration("BATCH_TIME_BUDGET", 9*time.Minute),
			AutoInterval: getEnvDuration("BATCH_AUTO_INTERVAL", 0),
		},
		Store: StoreConfig{
			Driver:   getEnv("STORE_DRIVER", StoreFile),
			FilePath: getEnv("STORE_FILE_PATH", "data/store.json"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Name:        getEnv("DB_NAME", "price_monitor"),
			SSLMode:     getEnv("DB_SSL_MODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 20)),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Stream:   getEnv("REDIS_STREAM", "stream:price_monitor"),
		},
		Browser: BrowserConfig{
			Headless:   getEnvBool("BROWSER_HEADLESS", true),
			Timeout:    getEnvDuration("BROWSER_TIMEOUT", 30*time.Second),
			Locale:     getEnv("BROWSER_LOCALE", "es-AR"),
			TimezoneID: getEnv("BROWSER_TIMEZONE", "America/Argentina/Buenos_Aires"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Scraper.FetchTimeout <= 0 {
		return fmt.Errorf("SCRAPER_FETCH_TIMEOUT must be positive")
	}

	switch c.Scraper.FetchMode {
	case FetchHTTP, FetchBrowser:
	default:
		return fmt.Errorf("unknown fetch mode %q", c.Scraper.FetchMode)
	}

	if c.Scraper.HostDelayMin > c.Scraper.HostDelayMax {
		return fmt.Errorf("SCRAPER_HOST_DELAY_MIN cannot be greater than SCRAPER_HOST_DELAY_MAX")
	}

	if c.Batch.MaxPerRun < 1 {
		return fmt.Errorf("BATCH_MAX_PER_RUN must be at least 1")
	}

	if c.Batch.GroupSize < 1 {
		return fmt.Errorf("BATCH_GROUP_SIZE must be at least 1")
	}

	switch c.Store.Driver {
	case StoreFile:
	case StorePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database host and name are required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// lookup returns the parsed value of key, or def when the variable is unset
// or does not parse.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, def string) string {
	if raw, ok := os.LookupEnv(key); ok {
		return raw
	}
	return def
}

func getEnvInt(key string, def int) int {
	return lookup(key, def, strconv.Atoi)
}

func getEnvBool(key string, def bool) bool {
	return lookup(key, def, strconv.ParseBool)
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	return lookup(key, def, time.ParseDuration)
}
