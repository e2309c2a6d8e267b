package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 20*time.Second, cfg.Scraper.FetchTimeout)
	assert.Equal(t, FetchHTTP, cfg.Scraper.FetchMode)
	assert.Equal(t, int64(10<<20), cfg.Scraper.MaxBodyBytes)
	assert.Equal(t, time.Minute, cfg.Scraper.PreviewCacheTTL)
	assert.Equal(t, 2000, cfg.Batch.MaxPerRun)
	assert.Equal(t, 50, cfg.Batch.GroupSize)
	assert.Equal(t, 9*time.Minute, cfg.Batch.TimeBudget)
	assert.Zero(t, cfg.Batch.AutoInterval)
	assert.Equal(t, StoreFile, cfg.Store.Driver)
	assert.Equal(t, "price_monitor", cfg.Database.Name)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "stream:price_monitor", cfg.Redis.Stream)
	assert.Equal(t, "es-AR", cfg.Browser.Locale)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SCRAPER_FETCH_MODE", "browser")
	t.Setenv("SCRAPER_HOST_DELAY_MIN", "1s")
	t.Setenv("SCRAPER_HOST_DELAY_MAX", "3s")
	t.Setenv("BATCH_GROUP_SIZE", "10")
	t.Setenv("BATCH_AUTO_INTERVAL", "15m")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_FILE_PATH", "")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, FetchBrowser, cfg.Scraper.FetchMode)
	assert.Equal(t, time.Second, cfg.Scraper.HostDelayMin)
	assert.Equal(t, 3*time.Second, cfg.Scraper.HostDelayMax)
	assert.Equal(t, 10, cfg.Batch.GroupSize)
	assert.Equal(t, 15*time.Minute, cfg.Batch.AutoInterval)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Empty(t, cfg.Store.FilePath)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("BATCH_MAX_PER_RUN", "lots")
	t.Setenv("BATCH_TIME_BUDGET", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Batch.MaxPerRun)
	assert.Equal(t, 9*time.Minute, cfg.Batch.TimeBudget)
}

func TestLoad_TrimsParsedValues(t *testing.T) {
	t.Setenv("BATCH_GROUP_SIZE", " 25 ")
	t.Setenv("BROWSER_HEADLESS", "false\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Batch.GroupSize)
	assert.False(t, cfg.Browser.Headless)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"zero fetch timeout", func(c *Config) { c.Scraper.FetchTimeout = 0 }, "SCRAPER_FETCH_TIMEOUT"},
		{"unknown fetch mode", func(c *Config) { c.Scraper.FetchMode = "curl" }, "unknown fetch mode"},
		{"delay range inverted", func(c *Config) {
			c.Scraper.HostDelayMin = 2 * time.Second
			c.Scraper.HostDelayMax = time.Second
		}, "SCRAPER_HOST_DELAY_MIN"},
		{"zero max per run", func(c *Config) { c.Batch.MaxPerRun = 0 }, "BATCH_MAX_PER_RUN"},
		{"zero group size", func(c *Config) { c.Batch.GroupSize = 0 }, "BATCH_GROUP_SIZE"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "unknown store driver"},
		{"postgres without host", func(c *Config) {
			c.Store.Driver = StorePostgres
			c.Database.Host = ""
		}, "database host and name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
