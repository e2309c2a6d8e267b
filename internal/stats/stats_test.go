package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-monitor/internal/models"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func result(urlID, name, prov string, price float64, discount string, at time.Duration) models.Result {
	return models.Result{
		URLID:     urlID,
		Name:      name,
		Provider:  prov,
		Price:     price,
		Discount:  discount,
		Status:    models.ScrapeSuccess,
		ScrapedAt: t0.Add(at),
	}
}

func TestSeriesLimit(t *testing.T) {
	assert.Equal(t, 100, SeriesLimit(0))
	assert.Equal(t, 100, SeriesLimit(-5))
	assert.Equal(t, 20, SeriesLimit(20))
	assert.Equal(t, 300, SeriesLimit(1000))
}

func TestPriceSeries(t *testing.T) {
	failed := result("u1", "", "p", 0, "", 3*time.Hour)
	failed.Status = models.ScrapeError
	results := []models.Result{
		result("u1", "A", "p", 120, "", 2*time.Hour),
		result("u1", "A", "p", 100, "", 0),
		result("u1", "A", "p", 0, "", time.Hour),
		failed,
		result("u1", "A", "p", 110, "", 4*time.Hour),
	}

	points := PriceSeries(results, 2)

	require.Len(t, points, 2)
	assert.Equal(t, 120.0, points[0].Price)
	assert.Equal(t, 110.0, points[1].Price)
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp))
}

func TestLatestSuccessful(t *testing.T) {
	failed := result("u1", "A", "p", 0, "", 5*time.Hour)
	failed.Status = models.ScrapeError

	latest := LatestSuccessful([]models.Result{
		result("u1", "A", "p", 100, "", 0),
		result("u1", "A", "p", 90, "", time.Hour),
		failed,
		result("u2", "B", "q", 50, "", 0),
	})

	require.Len(t, latest, 2)
	assert.Equal(t, 90.0, latest[0].Price)
	assert.Equal(t, "u2", latest[1].URLID)
}

func TestPriceAnalysis(t *testing.T) {
	latest := []models.Result{
		result("u1", "Mate Imperial", "VTEX - Supermat", 1000, "", 0),
		result("u2", "mate  imperial", "VTEX - Unimax", 1500, "", 0),
		result("u3", "Termo", "VTEX - Supermat", 5000, "", 0),
		result("u4", "Termo", "VTEX - Supermat", 5200, "", 0),
		result("u5", "Bombilla", "VTEX - El Amigo", 300, "", 0),
		result("u6", "Bombilla", "Tienda Nube - Zeramiko", 330, "", 0),
		result("u7", "Bombilla", "VTEX - Bercovich", 0, "", 0),
	}

	rows := PriceAnalysis(latest, "")

	require.Len(t, rows, 2, "single-provider products are excluded")
	assert.Equal(t, "Mate Imperial", rows[0].Product)
	assert.Equal(t, 1000.0, rows[0].MinPrice)
	assert.Equal(t, 1500.0, rows[0].MaxPrice)
	assert.Equal(t, 1250.0, rows[0].AvgPrice)
	assert.Equal(t, "VTEX - Supermat", rows[0].CheapestProvider)
	assert.Equal(t, "VTEX - Unimax", rows[0].PriciestProvider)
	assert.Equal(t, 50.0, rows[0].DiffPercent)
	assert.Equal(t, 2, rows[0].ProviderCount)

	assert.Equal(t, "Bombilla", rows[1].Product)
	assert.Equal(t, 10.0, rows[1].DiffPercent)

	filtered := PriceAnalysis(latest, "BOMB")
	require.Len(t, filtered, 1)
	assert.Equal(t, "Bombilla", filtered[0].Product)
}

func TestPriceAnalysisCapsRows(t *testing.T) {
	var latest []models.Result
	for i := 0; i < 60; i++ {
		name := fmt.Sprintf("Producto %d", i)
		latest = append(latest,
			result(fmt.Sprintf("a%d", i), name, "A", 100, "", 0),
			result(fmt.Sprintf("b%d", i), name, "B", 100+float64(i), "", 0),
		)
	}

	rows := PriceAnalysis(latest, "")

	require.Len(t, rows, MaxAnalysisRows)
	assert.Equal(t, "Producto 59", rows[0].Product)
}

func TestProviderSummary(t *testing.T) {
	rows := ProviderSummary([]models.Result{
		result("u1", "A", "Shop A", 100, "10%", 0),
		result("u2", "B", "Shop A", 300, "", 0),
		result("u3", "C", "Shop A", 0, "30%", 0),
		result("u4", "D", "Shop B", 50, "", 0),
	})

	require.Len(t, rows, 2)
	assert.Equal(t, models.ProviderStats{
		Provider:        "Shop A",
		ProductCount:    3,
		AvgPrice:        200,
		DiscountedCount: 2,
		AvgDiscount:     20,
	}, rows[0])
	assert.Equal(t, "Shop B", rows[1].Provider)
}

func TestDiscountPercent(t *testing.T) {
	v, ok := DiscountPercent("15%")
	assert.True(t, ok)
	assert.Equal(t, 15.0, v)

	_, ok = DiscountPercent("")
	assert.False(t, ok)
	_, ok = DiscountPercent("n/a")
	assert.False(t, ok)
}
