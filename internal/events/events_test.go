package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-monitor/internal/models"
)

func TestNewScrapeCompleted(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	lp := 150.0
	res := models.NewResult("r1", "u1", models.Outcome{
		URL:       "https://www.supermat.com.ar/mate/p",
		Name:      "Mate",
		Price:     100,
		ListPrice: &lp,
		Discount:  "33%",
		Provider:  "VTEX - Supermat",
		Status:    models.ScrapeSuccess,
		Timestamp: at,
	})

	p := NewScrapeCompleted(res)

	assert.NotEmpty(t, p.EventID)
	assert.Equal(t, "SCRAPE_COMPLETED", p.EventType)
	assert.Equal(t, at, p.Timestamp)
	assert.Equal(t, "u1", p.URLID)
	assert.Equal(t, "r1", p.ResultID)
	assert.True(t, p.Succeeded())

	data, err := p.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Mate", decoded["name"])
	assert.Equal(t, 150.0, decoded["list_price"])
	assert.NotContains(t, decoded, "error")
}

func TestNewScrapeCompletedError(t *testing.T) {
	res := models.NewResult("r2", "u2", models.Outcome{
		URL:       "https://example.com",
		Provider:  "example.com",
		Status:    models.ScrapeError,
		Timestamp: time.Now(),
		Error:     "timeout",
	})

	p := NewScrapeCompleted(res)

	assert.False(t, p.Succeeded())
	assert.Equal(t, "timeout", p.Error)
}
