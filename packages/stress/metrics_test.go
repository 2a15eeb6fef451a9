package stress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.Start()

	m.Record(Sample{Name: "a", Duration: 100 * time.Millisecond, Status: 200})
	m.Record(Sample{Name: "a", Duration: 150 * time.Millisecond, Status: 200, Reused: true})
	m.Record(Sample{Name: "b", Duration: 200 * time.Millisecond, Status: 200, Reused: true})
	m.Record(Sample{Name: "a", Duration: 50 * time.Millisecond, Status: 500, Err: errors.New("HTTP 500")})

	m.Stop()

	stats := m.GetCurrentStats()
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Success)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(2), stats.Reused)

	summary := m.GetSummary()
	assert.Equal(t, map[int]int64{200: 3, 500: 1}, summary.StatusCodes)
	assert.InDelta(t, 0.5, summary.ReuseRate, 1e-9)
	assert.InDelta(t, 0.25, summary.ErrorRate, 1e-9)
	assert.Equal(t, int64(3), summary.Targets["a"].Total)
	assert.Equal(t, int64(1), summary.Targets["a"].Errors)
	assert.Equal(t, int64(1), summary.Targets["b"].Reused)
}

func TestMetricsRecordTimeout(t *testing.T) {
	m := NewMetrics()
	m.Start()

	m.Record(Sample{Name: "a", Duration: 100 * time.Millisecond})
	m.RecordTimeout("a")

	m.Stop()

	summary := m.GetSummary()
	assert.Equal(t, int64(2), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.TimeoutCount)
	assert.Equal(t, int64(1), summary.ErrorCount)
	assert.Equal(t, int64(2), summary.Targets["a"].Total)
}

func TestMetricsLatencyPercentiles(t *testing.T) {
	m := NewMetrics()
	m.Start()
	for i := 1; i <= 100; i++ {
		m.Record(Sample{Duration: time.Duration(i) * time.Millisecond})
	}
	m.Stop()

	s := m.GetSummary()
	assert.InDelta(t, float64(50*time.Millisecond), float64(s.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(95*time.Millisecond), float64(s.P95), float64(time.Millisecond))
	assert.InDelta(t, float64(time.Millisecond), float64(s.Min), float64(10*time.Microsecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(s.Max), float64(time.Millisecond))
}

func TestMetricsClampsLatency(t *testing.T) {
	m := NewMetrics()
	m.Record(Sample{Duration: 0})
	m.Record(Sample{Duration: 2 * time.Minute})

	s := m.GetSummary()
	assert.Equal(t, int64(2), s.TotalRequests)
	assert.LessOrEqual(t, s.Max, 61*time.Second)
}

func TestMetricsActiveVUs(t *testing.T) {
	m := NewMetrics()

	m.IncrementActiveVUs()
	m.IncrementActiveVUs()
	assert.Equal(t, int32(2), m.GetCurrentStats().ActiveVUs)

	m.DecrementActiveVUs()
	assert.Equal(t, int32(1), m.GetCurrentStats().ActiveVUs)
}

func TestEvaluateThresholds(t *testing.T) {
	s := &Summary{
		P95:       120 * time.Millisecond,
		Max:       time.Second,
		ErrorRate: 0.02,
		RPS:       50,
		ReuseRate: 0.95,
	}

	results := EvaluateThresholds(s, Thresholds{
		P95:        200 * time.Millisecond,
		MaxLatency: 500 * time.Millisecond,
		ErrorRate:  0.01,
		MinRPS:     10,
		MinReuse:   0.9,
	})

	passed := make(map[string]bool)
	for _, r := range results {
		passed[r.Name] = r.Passed
	}
	assert.Equal(t, map[string]bool{
		"p95":              true,
		"max latency":      false,
		"error rate":       false,
		"min RPS":          true,
		"connection reuse": true,
	}, passed)
}
