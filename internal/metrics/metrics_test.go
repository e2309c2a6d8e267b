package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value gathers the registry and returns the counter or gauge value of the
// series named name whose single label equals label ("" for unlabelled).
func value(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := metric.GetLabel()
			if label != "" && (len(labels) != 1 || labels[0].GetValue() != label) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncFetch("http")
		m.ObserveFetch(time.Second)
		m.IncFetchError("timeout")
		m.IncProcessed("done")
		m.ObserveBatch("manual", time.Second)
		m.TrackInFlight()()
		m.IncOutbox("published")
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.IncProcessed("done")
	m.IncProcessed("done")
	m.IncProcessed("error")
	m.IncFetchError("timeout")
	m.ObserveBatch("auto", 2*time.Second)

	assert.Equal(t, 2.0, value(t, m, "price_monitor_urls_processed_total", "done"))
	assert.Equal(t, 1.0, value(t, m, "price_monitor_urls_processed_total", "error"))
	assert.Equal(t, 1.0, value(t, m, "price_monitor_fetch_errors_total", "timeout"))
	assert.Equal(t, 1.0, value(t, m, "price_monitor_batch_runs_total", "auto"))
}

func TestTrackInFlight(t *testing.T) {
	m := New()

	done := m.TrackInFlight()
	assert.Equal(t, 1.0, value(t, m, "price_monitor_scrapes_in_flight", ""))
	done()
	assert.Equal(t, 0.0, value(t, m, "price_monitor_scrapes_in_flight", ""))
}
