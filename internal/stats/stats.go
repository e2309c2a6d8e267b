// Package stats derives price analytics from stored scrape results.
package stats

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/maltedev/price-monitor/internal/models"
	"github.com/maltedev/price-monitor/internal/normalize"
)

const (
	DefaultSeriesLimit = 100
	MaxSeriesLimit     = 300
	MaxAnalysisRows    = 50
)

// SeriesLimit clamps a requested price series length.
func SeriesLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSeriesLimit
	case limit > MaxSeriesLimit:
		return MaxSeriesLimit
	default:
		return limit
	}
}

// PriceSeries keeps successful priced results, takes the newest limit of
// them and returns them oldest first.
func PriceSeries(results []models.Result, limit int) []models.PricePoint {
	limit = SeriesLimit(limit)

	priced := make([]models.Result, 0, len(results))
	for _, r := range results {
		if r.Status == models.ScrapeSuccess && r.Price > 0 {
			priced = append(priced, r)
		}
	}
	sort.SliceStable(priced, func(i, j int) bool { return priced[i].ScrapedAt.After(priced[j].ScrapedAt) })
	if len(priced) > limit {
		priced = priced[:limit]
	}

	points := make([]models.PricePoint, len(priced))
	for i, r := range priced {
		points[len(priced)-1-i] = models.PricePoint{Timestamp: r.ScrapedAt, Price: r.Price, Provider: r.Provider}
	}
	return points
}

// LatestSuccessful returns the newest successful result of every URL.
func LatestSuccessful(results []models.Result) []models.Result {
	latest := make(map[string]models.Result)
	for _, r := range results {
		if r.Status != models.ScrapeSuccess {
			continue
		}
		if cur, ok := latest[r.URLID]; !ok || r.ScrapedAt.After(cur.ScrapedAt) {
			latest[r.URLID] = r
		}
	}
	out := make([]models.Result, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URLID < out[j].URLID })
	return out
}

// PriceAnalysis compares products offered by more than one provider. latest
// should hold one result per URL; see LatestSuccessful. Rows are ordered by
// price spread, widest first.
func PriceAnalysis(latest []models.Result, search string) []models.PriceStats {
	search = strings.ToLower(normalize.CleanText(search))

	type group struct {
		name      string
		results   []models.Result
		providers map[string]struct{}
	}
	groups := make(map[string]*group)
	var order []string

	for _, r := range latest {
		if r.Price <= 0 || r.Name == "" || r.Name == models.UnknownProductName {
			continue
		}
		key := strings.ToLower(normalize.CleanText(r.Name))
		if search != "" && !strings.Contains(key, search) {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{name: normalize.CleanText(r.Name), providers: make(map[string]struct{})}
			groups[key] = g
			order = append(order, key)
		}
		g.results = append(g.results, r)
		g.providers[r.Provider] = struct{}{}
	}

	var rows []models.PriceStats
	for _, key := range order {
		g := groups[key]
		if len(g.providers) < 2 {
			continue
		}
		cheapest, priciest := g.results[0], g.results[0]
		sum := 0.0
		for _, r := range g.results {
			sum += r.Price
			if r.Price < cheapest.Price {
				cheapest = r
			}
			if r.Price > priciest.Price {
				priciest = r
			}
		}
		rows = append(rows, models.PriceStats{
			Product:          g.name,
			MinPrice:         cheapest.Price,
			MaxPrice:         priciest.Price,
			AvgPrice:         round2(sum / float64(len(g.results))),
			CheapestProvider: cheapest.Provider,
			PriciestProvider: priciest.Provider,
			DiffPercent:      round2((priciest.Price - cheapest.Price) / cheapest.Price * 100),
			ProviderCount:    len(g.providers),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].DiffPercent > rows[j].DiffPercent })
	if len(rows) > MaxAnalysisRows {
		rows = rows[:MaxAnalysisRows]
	}
	return rows
}

// ProviderSummary aggregates the latest results per provider, largest
// catalogue first.
func ProviderSummary(latest []models.Result) []models.ProviderStats {
	type acc struct {
		count, priced, discounted int
		priceSum, discountSum     float64
	}
	byProvider := make(map[string]*acc)

	for _, r := range latest {
		a, ok := byProvider[r.Provider]
		if !ok {
			a = &acc{}
			byProvider[r.Provider] = a
		}
		a.count++
		if r.Price > 0 {
			a.priced++
			a.priceSum += r.Price
		}
		if pct, ok := DiscountPercent(r.Discount); ok {
			a.discounted++
			a.discountSum += pct
		}
	}

	rows := make([]models.ProviderStats, 0, len(byProvider))
	for name, a := range byProvider {
		row := models.ProviderStats{
			Provider:        name,
			ProductCount:    a.count,
			DiscountedCount: a.discounted,
		}
		if a.priced > 0 {
			row.AvgPrice = round2(a.priceSum / float64(a.priced))
		}
		if a.discounted > 0 {
			row.AvgDiscount = round2(a.discountSum / float64(a.discounted))
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductCount != rows[j].ProductCount {
			return rows[i].ProductCount > rows[j].ProductCount
		}
		return rows[i].Provider < rows[j].Provider
	})
	return rows
}

// DiscountPercent parses a stored discount such as "15%".
func DiscountPercent(discount string) (float64, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(discount), "%")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
