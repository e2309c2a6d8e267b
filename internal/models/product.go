package models

import (
	"time"
)

// UnknownProductName replaces an empty product name; grouping and display
// depend on name being non-empty.
const UnknownProductName = "unknown product"

type ScrapeStatus string

const (
	ScrapeSuccess ScrapeStatus = "success"
	ScrapeError   ScrapeStatus = "error"
)

// Outcome is what a single page scrape returns before anything is stored.
type Outcome struct {
	URL       string       `json:"url"`
	Name      string       `json:"name"`
	Price     float64      `json:"price"`
	ListPrice *float64     `json:"list_price,omitempty"`
	Discount  string       `json:"discount"`
	Category  string       `json:"category"`
	Provider  string       `json:"provider"`
	Status    ScrapeStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Error     string       `json:"error,omitempty"`
}

func (o *Outcome) Succeeded() bool {
	return o.Status == ScrapeSuccess
}

// Result is the immutable record of one scrape attempt.
type Result struct {
	ID        string       `json:"id"`
	URLID     string       `json:"url_id"`
	URL       string       `json:"url"`
	Name      string       `json:"name"`
	Price     float64      `json:"price"`
	ListPrice *float64     `json:"list_price,omitempty"`
	Discount  string       `json:"discount"`
	Category  string       `json:"category"`
	Provider  string       `json:"provider"`
	Status    ScrapeStatus `json:"status"`
	Error     *string      `json:"error,omitempty"`
	ScrapedAt time.Time    `json:"scraped_at"`
}

// NewResult maps an outcome onto the result written for urlID.
func NewResult(id, urlID string, o Outcome) Result {
	r := Result{
		ID:        id,
		URLID:     urlID,
		URL:       o.URL,
		Name:      o.Name,
		Price:     o.Price,
		ListPrice: o.ListPrice,
		Discount:  o.Discount,
		Category:  o.Category,
		Provider:  o.Provider,
		Status:    o.Status,
		ScrapedAt: o.Timestamp,
	}
	if o.Status == ScrapeError {
		msg := o.Error
		r.Error = &msg
	}
	return r
}

// PricePoint is one sample of a URL's price evolution.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Provider  string    `json:"provider"`
}

// PriceStats compares one product name across providers.
type PriceStats struct {
	Product          string  `json:"product"`
	MinPrice         float64 `json:"min_price"`
	MaxPrice         float64 `json:"max_price"`
	AvgPrice         float64 `json:"avg_price"`
	CheapestProvider string  `json:"cheapest_provider"`
	PriciestProvider string  `json:"priciest_provider"`
	DiffPercent      float64 `json:"diff_percent"`
	ProviderCount    int     `json:"provider_count"`
}

type ProviderStats struct {
	Provider        string  `json:"provider"`
	ProductCount    int     `json:"product_count"`
	AvgPrice        float64 `json:"avg_price"`
	DiscountedCount int     `json:"discounted_count"`
	AvgDiscount     float64 `json:"avg_discount"`
}
