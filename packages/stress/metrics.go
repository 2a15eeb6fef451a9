package stress

import (
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// latency is tracked in microseconds from 1us to 60s
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Sample is the outcome of a single bench request
type Sample struct {
	Name     string
	Duration time.Duration
	Status   int
	Reused   bool
	Err      error
}

// Metrics collects and aggregates bench metrics
type Metrics struct {
	mu sync.RWMutex

	total    atomic.Int64
	success  atomic.Int64
	errors   atomic.Int64
	timeouts atomic.Int64
	reused   atomic.Int64

	histogram *hdrhistogram.Histogram
	statuses  map[int]int64
	targets   map[string]*targetMetrics

	startTime time.Time
	endTime   time.Time

	activeVUs atomic.Int32
}

type targetMetrics struct {
	total     int64
	errors    int64
	reused    int64
	histogram *hdrhistogram.Histogram
}

// NewMetrics creates a new Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		histogram: newHistogram(),
		statuses:  make(map[int]int64),
		targets:   make(map[string]*targetMetrics),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatencyUs, maxLatencyUs, 3)
}

// Start marks the beginning of the run
func (m *Metrics) Start() {
	m.startTime = time.Now()
}

// Stop marks the end of the run
func (m *Metrics) Stop() {
	m.endTime = time.Now()
}

// Record adds a completed request
func (m *Metrics) Record(s Sample) {
	m.total.Add(1)
	if s.Err != nil {
		m.errors.Add(1)
	} else {
		m.success.Add(1)
	}
	if s.Reused {
		m.reused.Add(1)
	}

	us := min(max(s.Duration.Microseconds(), minLatencyUs), maxLatencyUs)

	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.histogram.RecordValue(us)
	if s.Status > 0 {
		m.statuses[s.Status]++
	}

	if s.Name == "" {
		return
	}
	tm := m.target(s.Name)
	tm.total++
	if s.Err != nil {
		tm.errors++
	}
	if s.Reused {
		tm.reused++
	}
	_ = tm.histogram.RecordValue(us)
}

// RecordTimeout records a request cut off by the end of the run
func (m *Metrics) RecordTimeout(name string) {
	m.total.Add(1)
	m.errors.Add(1)
	m.timeouts.Add(1)

	if name == "" {
		return
	}
	m.mu.Lock()
	tm := m.target(name)
	tm.total++
	tm.errors++
	m.mu.Unlock()
}

// target must be called with mu held
func (m *Metrics) target(name string) *targetMetrics {
	tm, ok := m.targets[name]
	if !ok {
		tm = &targetMetrics{histogram: newHistogram()}
		m.targets[name] = tm
	}
	return tm
}

// IncrementActiveVUs increments active VU count
func (m *Metrics) IncrementActiveVUs() {
	m.activeVUs.Add(1)
}

// DecrementActiveVUs decrements active VU count
func (m *Metrics) DecrementActiveVUs() {
	m.activeVUs.Add(-1)
}

// Summary is the final bench summary
type Summary struct {
	Duration      time.Duration `json:"duration"`
	TotalRequests int64         `json:"total"`
	SuccessCount  int64         `json:"success"`
	ErrorCount    int64         `json:"errors"`
	TimeoutCount  int64         `json:"timeouts"`
	ReusedCount   int64         `json:"reused"`

	RPS         float64 `json:"rps"`
	SuccessRate float64 `json:"successRate"`
	ErrorRate   float64 `json:"errorRate"`
	ReuseRate   float64 `json:"reuseRate"`

	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stddev"`

	StatusCodes map[int]int64             `json:"statusCodes"`
	Targets     map[string]*TargetSummary `json:"targets,omitempty"`

	// Connection counters reported by the client after the run
	Connects    int64 `json:"connects"`
	ForceCloses int64 `json:"forceCloses"`
}

// TargetSummary holds the summary for a single target
type TargetSummary struct {
	Total  int64         `json:"total"`
	Errors int64         `json:"errors"`
	Reused int64         `json:"reused"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Mean   time.Duration `json:"mean"`
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func ratio(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// GetSummary returns the metrics summary
func (m *Metrics) GetSummary() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	total := m.total.Load()
	s := &Summary{
		Duration:      duration,
		TotalRequests: total,
		SuccessCount:  m.success.Load(),
		ErrorCount:    m.errors.Load(),
		TimeoutCount:  m.timeouts.Load(),
		ReusedCount:   m.reused.Load(),
		P50:           quantile(m.histogram, 50),
		P95:           quantile(m.histogram, 95),
		P99:           quantile(m.histogram, 99),
		Min:           time.Duration(m.histogram.Min()) * time.Microsecond,
		Max:           time.Duration(m.histogram.Max()) * time.Microsecond,
		Mean:          time.Duration(m.histogram.Mean()) * time.Microsecond,
		StdDev:        time.Duration(m.histogram.StdDev()) * time.Microsecond,
		StatusCodes:   maps.Clone(m.statuses),
		Targets:       make(map[string]*TargetSummary, len(m.targets)),
	}
	if duration > 0 {
		s.RPS = float64(total) / duration.Seconds()
	}
	s.SuccessRate = ratio(s.SuccessCount, total)
	s.ErrorRate = ratio(s.ErrorCount, total)
	s.ReuseRate = ratio(s.ReusedCount, total)

	for name, tm := range m.targets {
		s.Targets[name] = &TargetSummary{
			Total:  tm.total,
			Errors: tm.errors,
			Reused: tm.reused,
			P50:    quantile(tm.histogram, 50),
			P95:    quantile(tm.histogram, 95),
			P99:    quantile(tm.histogram, 99),
			Mean:   time.Duration(tm.histogram.Mean()) * time.Microsecond,
		}
	}

	return s
}

// CurrentStats is a live view for progress display
type CurrentStats struct {
	Elapsed   time.Duration
	Total     int64
	Success   int64
	Errors    int64
	Reused    int64
	RPS       float64
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	Max       time.Duration
	ActiveVUs int32
	ErrorRate float64
}

// GetCurrentStats returns current statistics
func (m *Metrics) GetCurrentStats() CurrentStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.startTime)
	total := m.total.Load()
	errors := m.errors.Load()

	stats := CurrentStats{
		Elapsed:   elapsed,
		Total:     total,
		Success:   m.success.Load(),
		Errors:    errors,
		Reused:    m.reused.Load(),
		P50:       quantile(m.histogram, 50),
		P95:       quantile(m.histogram, 95),
		P99:       quantile(m.histogram, 99),
		Max:       time.Duration(m.histogram.Max()) * time.Microsecond,
		ActiveVUs: m.activeVUs.Load(),
		ErrorRate: ratio(errors, total),
	}
	if elapsed > 0 {
		stats.RPS = float64(total) / elapsed.Seconds()
	}
	return stats
}

// EvaluateThresholds checks a summary against the configured thresholds
func EvaluateThresholds(s *Summary, t Thresholds) []ThresholdResult {
	var results []ThresholdResult

	latency := func(name string, limit, actual time.Duration) {
		if limit > 0 {
			results = append(results, ThresholdResult{
				Name:     name,
				Passed:   actual <= limit,
				Expected: "< " + limit.String(),
				Actual:   actual.String(),
			})
		}
	}
	latency("p50", t.P50, s.P50)
	latency("p95", t.P95, s.P95)
	latency("p99", t.P99, s.P99)
	latency("max latency", t.MaxLatency, s.Max)

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "error rate",
			Passed:   s.ErrorRate <= t.ErrorRate,
			Expected: "< " + formatPercent(t.ErrorRate),
			Actual:   formatPercent(s.ErrorRate),
		})
	}

	if t.MinRPS > 0 {
		results = append(results, ThresholdResult{
			Name:     "min RPS",
			Passed:   s.RPS >= t.MinRPS,
			Expected: "> " + formatFloat(t.MinRPS),
			Actual:   formatFloat(s.RPS),
		})
	}

	if t.MinReuse > 0 {
		results = append(results, ThresholdResult{
			Name:     "connection reuse",
			Passed:   s.ReuseRate >= t.MinReuse,
			Expected: "> " + formatPercent(t.MinReuse),
			Actual:   formatPercent(s.ReuseRate),
		})
	}

	return results
}

func formatPercent(f float64) string {
	return formatFloat(f*100) + "%"
}

func formatFloat(f float64) string {
	if f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
