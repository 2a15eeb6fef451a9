package stress

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietReporter(buf *bytes.Buffer) *Reporter {
	return NewReporter(WithWriter(buf), WithNoProgress(true), WithNoColor(true))
}

func TestRunnerRateMode(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	client := webclient.NewClient()
	defer client.CloseIdleConnections()

	var out bytes.Buffer
	cfg := &Config{Mode: RateMode, Duration: time.Second, Rate: 20, MaxVUs: 2}
	runner := NewRunner(cfg, WithClient(client), WithReporter(quietReporter(&out)))
	runner.AddTarget(Target{Method: "GET", URL: server.URL + "/health"})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	s := result.Summary
	assert.Positive(t, s.TotalRequests)
	assert.Equal(t, int64(0), s.ErrorCount)
	assert.Equal(t, hits.Load(), s.SuccessCount)
	assert.Equal(t, s.TotalRequests, s.StatusCodes[200])
	assert.Positive(t, s.ReusedCount, "keep-alive connections should be reused")
	assert.Less(t, s.Connects, s.TotalRequests)
	assert.Contains(t, s.Targets, "GET "+server.URL+"/health")
	assert.True(t, result.Passed)
}

func TestRunnerWithErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "server error"}`))
	}))
	defer server.Close()

	var out bytes.Buffer
	cfg := &Config{Mode: RateMode, Duration: 500 * time.Millisecond, Rate: 10, MaxVUs: 2}
	runner := NewRunner(cfg, WithReporter(quietReporter(&out)))
	runner.AddTarget(Target{Name: "fail", Method: "GET", URL: server.URL})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Positive(t, result.Summary.ErrorCount)
	assert.Equal(t, result.Summary.TotalRequests, result.Summary.ErrorCount)
	assert.Equal(t, result.Summary.TotalRequests, result.Summary.StatusCodes[500])
}

func TestRunnerWithThresholds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var out bytes.Buffer
	cfg := &Config{
		Mode:     RateMode,
		Duration: time.Second,
		Rate:     10,
		MaxVUs:   4,
		Thresholds: Thresholds{
			P95:       500 * time.Millisecond,
			ErrorRate: 0.01,
			MinRPS:    100000,
		},
	}
	runner := NewRunner(cfg, WithReporter(quietReporter(&out)))
	runner.AddTarget(Target{Method: "GET", URL: server.URL})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Thresholds, 3)
	assert.False(t, result.Passed)
	assert.True(t, result.HasThresholdFailures())
}

func TestRunnerVUMode(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var out bytes.Buffer
	cfg := &Config{Mode: VUMode, Duration: 500 * time.Millisecond, VUs: 3, MaxVUs: 3}
	runner := NewRunner(cfg, WithReporter(quietReporter(&out)))
	runner.AddTarget(Target{Method: "POST", URL: server.URL, Body: []byte("x")})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Positive(t, result.Summary.TotalRequests)
	assert.Positive(t, result.Summary.StatusCodes[204])
	assert.Positive(t, result.Summary.ReusedCount)
}

func TestRunnerNoTargets(t *testing.T) {
	runner := NewRunner(DefaultConfig(), WithReporter(quietReporter(&bytes.Buffer{})))
	_, err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "no targets")
}

func TestRunnerInvalidConfig(t *testing.T) {
	runner := NewRunner(&Config{}, WithReporter(quietReporter(&bytes.Buffer{})))
	runner.AddTarget(Target{Method: "GET", URL: "http://127.0.0.1:1/"})
	_, err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "invalid config")
}

func TestReporterSummary(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(WithWriter(&out), WithNoColor(true), WithVerbose(true))

	result := &Result{
		Summary: &Summary{
			Duration:      2 * time.Second,
			TotalRequests: 1500,
			SuccessCount:  1500,
			ReusedCount:   1498,
			Connects:      2,
			StatusCodes:   map[int]int64{200: 1500},
			Targets:       map[string]*TargetSummary{"GET /": {Total: 1500}},
		},
		Thresholds: []ThresholdResult{{Name: "p95", Passed: true, Expected: "< 200ms", Actual: "3ms"}},
		Passed:     true,
	}
	r.Summary(result)

	text := out.String()
	assert.Contains(t, text, "1,500")
	assert.Contains(t, text, "opened: 2 | reused: 1,498")
	assert.Contains(t, text, "200: 1,500")
	assert.Contains(t, text, "PER-TARGET BREAKDOWN")
	assert.Contains(t, text, "All thresholds passed!")
	assert.False(t, strings.Contains(text, "\x1b["), "no color escapes expected")
}

func TestReporterJSONSummary(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(WithWriter(&out))

	err := r.JSONSummary(&Result{
		Summary: &Summary{TotalRequests: 3, ReusedCount: 2, P95: 1500 * time.Microsecond},
		Passed:  true,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, true, decoded["passed"])
	assert.Equal(t, 1.5, decoded["latency"].(map[string]any)["p95"])
	assert.Equal(t, float64(2), decoded["connections"].(map[string]any)["reused"])
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
