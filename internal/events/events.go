// Package events defines the messages published when scrapes complete.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/price-monitor/internal/models"
)

type EventType string

const (
	EventTypeScrapeCompleted EventType = "SCRAPE_COMPLETED"

	AggregateTypeURL = "url"
	DefaultStream    = "stream:price_monitor"
)

// ScrapeCompletedPayload is emitted once per stored result.
type ScrapeCompletedPayload struct {
	EventID   string              `json:"event_id"`
	EventType string              `json:"event_type"`
	Timestamp time.Time           `json:"timestamp"`
	URLID     string              `json:"url_id"`
	ResultID  string              `json:"result_id"`
	URL       string              `json:"url"`
	Name      string              `json:"name"`
	Price     float64             `json:"price"`
	ListPrice *float64            `json:"list_price,omitempty"`
	Discount  string              `json:"discount,omitempty"`
	Category  string              `json:"category,omitempty"`
	Provider  string              `json:"provider"`
	Status    models.ScrapeStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
}

// NewScrapeCompleted builds the payload for a result that has just been written.
func NewScrapeCompleted(r models.Result) *ScrapeCompletedPayload {
	p := &ScrapeCompletedPayload{
		EventID:   uuid.NewString(),
		EventType: string(EventTypeScrapeCompleted),
		Timestamp: r.ScrapedAt,
		URLID:     r.URLID,
		ResultID:  r.ID,
		URL:       r.URL,
		Name:      r.Name,
		Price:     r.Price,
		ListPrice: r.ListPrice,
		Discount:  r.Discount,
		Category:  r.Category,
		Provider:  r.Provider,
		Status:    r.Status,
	}
	if r.Error != nil {
		p.Error = *r.Error
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	return p
}

func (p *ScrapeCompletedPayload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Succeeded reports whether the underlying scrape succeeded.
func (p *ScrapeCompletedPayload) Succeeded() bool {
	return p.Status == models.ScrapeSuccess
}
