package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/price-monitor/internal/models"
	"github.com/maltedev/price-monitor/internal/parser"
	"github.com/maltedev/price-monitor/internal/provider"
)

// Scraper fetches one product page and turns it into an outcome. It never
// writes to storage.
type Scraper struct {
	fetcher Fetcher
	parser  parser.Parser
	logger  *slog.Logger
	now     func() time.Time
}

func New(fetcher Fetcher, p parser.Parser, logger *slog.Logger) *Scraper {
	if p == nil {
		p = parser.NewProductParser()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		fetcher: fetcher,
		parser:  p,
		logger:  logger.With("component", "scraper"),
		now:     time.Now,
	}
}

// ScrapePage fetches url and extracts the product record. knownProvider is
// used as-is when non-empty. Fetch failures become an error outcome.
func (s *Scraper) ScrapePage(ctx context.Context, url, knownProvider string) models.Outcome {
	url = strings.TrimSpace(url)
	prov := knownProvider
	if prov == "" {
		prov = provider.Resolve(url)
	}

	if url == "" {
		return s.failure(url, prov, ErrEmptyURL)
	}

	html, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("fetch failed", "url", url, "error_type", ErrorType(err), "error", err)
		return s.failure(url, prov, err)
	}

	rec := s.parser.ParseProductPage(html, prov)

	name := rec.Name
	if name == "" {
		name = models.UnknownProductName
	}

	out := models.Outcome{
		URL:       url,
		Name:      name,
		Price:     rec.Price.OrElse(0),
		Discount:  rec.Discount,
		Category:  rec.Category,
		Provider:  prov,
		Status:    models.ScrapeSuccess,
		Timestamp: s.now(),
	}
	if lp, ok := rec.ListPrice.Get(); ok {
		out.ListPrice = &lp
	}

	s.logger.Debug("page scraped", "url", url, "name", out.Name, "price", out.Price)
	return out
}

func (s *Scraper) failure(url, prov string, err error) models.Outcome {
	return models.Outcome{
		URL:       url,
		Provider:  prov,
		Status:    models.ScrapeError,
		Timestamp: s.now(),
		Error:     err.Error(),
	}
}
