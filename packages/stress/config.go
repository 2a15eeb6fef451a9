// Package stress drives keep-alive load against HTTP endpoints through the
// hitwire client. It supports rate-based and virtual user based scheduling,
// collects latency histograms alongside connection reuse counts, and
// evaluates pass/fail thresholds.
package stress

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ExecutionMode defines how the bench schedules requests
type ExecutionMode int

const (
	// RateMode sends requests at a constant rate (requests per second)
	RateMode ExecutionMode = iota
	// VUMode uses virtual users that send requests back to back
	VUMode
)

func (m ExecutionMode) String() string {
	if m == VUMode {
		return "vu"
	}
	return "rate"
}

// Config holds all configuration for a bench run
type Config struct {
	Mode       ExecutionMode
	Duration   time.Duration
	Rate       float64       // requests per second (RateMode)
	VUs        int           // number of virtual users (VUMode)
	MaxVUs     int           // max concurrent requests
	ThinkTime  time.Duration // pause between requests per VU
	RampUp     time.Duration
	Thresholds Thresholds
}

// Target is one request the bench can issue
type Target struct {
	Name    string
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
	Weight  int // relative weight for selection (default 1)
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:     RateMode,
		Duration: 10 * time.Second,
		Rate:     10,
		MaxVUs:   10,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	switch {
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive")
	case c.Mode == RateMode && c.Rate <= 0:
		return fmt.Errorf("rate must be positive in rate mode")
	case c.Mode == VUMode && c.VUs <= 0:
		return fmt.Errorf("VUs must be positive in VU mode")
	case c.MaxVUs < 1:
		return fmt.Errorf("maxVUs must be at least 1")
	case c.RampUp < 0:
		return fmt.Errorf("rampUp cannot be negative")
	case c.RampUp > c.Duration:
		return fmt.Errorf("rampUp cannot exceed duration")
	}
	return nil
}

// Thresholds defines pass/fail criteria for a bench run
type Thresholds struct {
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	MaxLatency time.Duration
	ErrorRate  float64 // maximum error rate (0.0 - 1.0)
	MinRPS     float64
	MinReuse   float64 // minimum share of requests served on a cached connection
}

// HasThresholds returns true if any thresholds are configured
func (t *Thresholds) HasThresholds() bool {
	return t.P50 > 0 || t.P95 > 0 || t.P99 > 0 || t.MaxLatency > 0 ||
		t.ErrorRate > 0 || t.MinRPS > 0 || t.MinReuse > 0
}

// ThresholdResult holds the result of evaluating a threshold
type ThresholdResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>]=?)\s*(.+)$`)

// ParseThresholds parses a threshold string like "p95<200ms,errors<0.1%,reuse>90%"
func ParseThresholds(s string) (Thresholds, error) {
	var t Thresholds

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := parseThresholdPart(part, &t); err != nil {
			return t, err
		}
	}

	return t, nil
}

func parseThresholdPart(part string, t *Thresholds) error {
	matches := thresholdPattern.FindStringSubmatch(part)
	if len(matches) != 4 {
		return fmt.Errorf("invalid threshold format: %s", part)
	}

	metric := strings.ToLower(matches[1])
	upper := strings.HasPrefix(matches[2], "<")
	value := strings.TrimSpace(matches[3])

	var latency *time.Duration
	switch metric {
	case "p50":
		latency = &t.P50
	case "p95":
		latency = &t.P95
	case "p99":
		latency = &t.P99
	case "max", "maxlatency":
		latency = &t.MaxLatency
	}
	if latency != nil {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", metric, value)
		}
		if !upper {
			return fmt.Errorf("%s threshold must use < or <=", metric)
		}
		*latency = d
		return nil
	}

	switch metric {
	case "errors", "error", "errorrate":
		f, err := parseRatio(value)
		if err != nil {
			return fmt.Errorf("invalid error rate: %s", value)
		}
		if !upper {
			return fmt.Errorf("error rate threshold must use < or <=")
		}
		t.ErrorRate = f

	case "rps", "rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RPS: %s", value)
		}
		if upper {
			return fmt.Errorf("RPS threshold must use > or >=")
		}
		t.MinRPS = f

	case "reuse":
		f, err := parseRatio(value)
		if err != nil {
			return fmt.Errorf("invalid reuse ratio: %s", value)
		}
		if upper {
			return fmt.Errorf("reuse threshold must use > or >=")
		}
		t.MinReuse = f

	default:
		return fmt.Errorf("unknown threshold metric: %s", metric)
	}

	return nil
}

// parseRatio accepts "0.1%" as a percentage or "0.001" as a fraction
func parseRatio(s string) (float64, error) {
	pct := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, err
	}
	if pct {
		f /= 100
	}
	return f, nil
}
