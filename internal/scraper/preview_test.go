package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/price-monitor/internal/models"
)

type countingScraper struct {
	calls  int
	status models.ScrapeStatus
}

func (c *countingScraper) ScrapePage(_ context.Context, url, provider string) models.Outcome {
	c.calls++
	return models.Outcome{URL: url, Provider: provider, Status: c.status, Price: 10}
}

func TestPreviewCache(t *testing.T) {
	t.Run("reuses successful outcome", func(t *testing.T) {
		inner := &countingScraper{status: models.ScrapeSuccess}
		cache := NewPreviewCache(inner, time.Minute)

		first := cache.ScrapePage(context.Background(), "https://shop.example/p", "")
		second := cache.ScrapePage(context.Background(), "https://shop.example/p", "")

		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("provider is part of the key", func(t *testing.T) {
		inner := &countingScraper{status: models.ScrapeSuccess}
		cache := NewPreviewCache(inner, time.Minute)

		cache.ScrapePage(context.Background(), "https://shop.example/p", "")
		out := cache.ScrapePage(context.Background(), "https://shop.example/p", "VTEX - Shop")

		assert.Equal(t, 2, inner.calls)
		assert.Equal(t, "VTEX - Shop", out.Provider)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		inner := &countingScraper{status: models.ScrapeError}
		cache := NewPreviewCache(inner, time.Minute)

		cache.ScrapePage(context.Background(), "https://shop.example/p", "")
		cache.ScrapePage(context.Background(), "https://shop.example/p", "")

		assert.Equal(t, 2, inner.calls)
		assert.Zero(t, cache.Len())
	})
}
