package scraper

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maltedev/price-monitor/internal/models"
)

const previewCacheSize = 256

// PageScraper is satisfied by *Scraper.
type PageScraper interface {
	ScrapePage(ctx context.Context, url, knownProvider string) models.Outcome
}

// PreviewCache remembers successful outcomes for a short time so repeated
// previews of one address do not hit the storefront again. Failed outcomes
// are never cached.
type PreviewCache struct {
	scraper PageScraper
	cache   *expirable.LRU[string, models.Outcome]
}

func NewPreviewCache(s PageScraper, ttl time.Duration) *PreviewCache {
	return &PreviewCache{
		scraper: s,
		cache:   expirable.NewLRU[string, models.Outcome](previewCacheSize, nil, ttl),
	}
}

func (p *PreviewCache) ScrapePage(ctx context.Context, url, knownProvider string) models.Outcome {
	key := knownProvider + "|" + url
	if out, ok := p.cache.Get(key); ok {
		return out
	}

	out := p.scraper.ScrapePage(ctx, url, knownProvider)
	if out.Succeeded() {
		p.cache.Add(key, out)
	}
	return out
}

func (p *PreviewCache) Len() int {
	return p.cache.Len()
}
