package stress

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
)

// Reporter handles output for bench runs
type Reporter struct {
	writer     io.Writer
	noColor    bool
	noProgress bool
	verbose    bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	plain  *color.Color
}

// ReporterOption configures the reporter
type ReporterOption func(*Reporter)

// WithWriter sets the output writer
func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

// WithNoColor disables colored output
func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

// WithNoProgress disables real-time progress display
func WithNoProgress(noProgress bool) ReporterOption {
	return func(r *Reporter) {
		r.noProgress = noProgress
	}
}

// WithVerbose enables the per-target breakdown
func WithVerbose(verbose bool) ReporterOption {
	return func(r *Reporter) {
		r.verbose = verbose
	}
}

// NewReporter creates a new reporter
func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	newColor := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if r.noColor {
			c.DisableColor()
		}
		return c
	}
	r.green = newColor(color.FgGreen)
	r.red = newColor(color.FgRed)
	r.yellow = newColor(color.FgYellow)
	r.cyan = newColor(color.FgCyan)
	r.bold = newColor(color.Bold)
	r.plain = color.New()
	r.plain.DisableColor()

	return r
}

// Header prints the run header
func (r *Reporter) Header(config *Config, targets []*Target) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "hitwire bench")
	for _, t := range targets {
		r.cyan.Fprintf(r.writer, "  %s %s\n", t.Method, t.URL)
	}

	details := []string{}
	if config.Mode == RateMode {
		details = append(details, fmt.Sprintf("Target: %.0f req/s", config.Rate))
	} else {
		details = append(details, fmt.Sprintf("VUs: %d", config.VUs))
	}
	details = append(details,
		fmt.Sprintf("Duration: %s", config.Duration),
		fmt.Sprintf("Concurrency: %d", config.MaxVUs))

	fmt.Fprintln(r.writer, strings.Join(details, " | "))
	fmt.Fprintln(r.writer)
}

// Progress redraws the live progress block
func (r *Reporter) Progress(stats CurrentStats, duration time.Duration) {
	if r.noProgress {
		return
	}

	fmt.Fprint(r.writer, "\r\033[K")

	const barWidth = 30
	filled := int(min(float64(stats.Elapsed)/float64(duration), 1) * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)
	fmt.Fprintf(r.writer, "Progress %s %s / %s\n", bar, formatDuration(stats.Elapsed), formatDuration(duration))

	fmt.Fprint(r.writer, "Requests: ")
	r.bold.Fprint(r.writer, formatNumber(stats.Total))
	fmt.Fprint(r.writer, " total | ")
	r.green.Fprint(r.writer, formatNumber(stats.Success))
	fmt.Fprint(r.writer, " success | ")
	r.errorColor(stats.Errors).Fprint(r.writer, formatNumber(stats.Errors))
	fmt.Fprintf(r.writer, " errors (%.2f%%)\n", stats.ErrorRate*100)

	fmt.Fprint(r.writer, "Rate: ")
	r.cyan.Fprintf(r.writer, "%.1f", stats.RPS)
	fmt.Fprintf(r.writer, " req/s | Reused: %s | Active VUs: %d\n", formatNumber(stats.Reused), stats.ActiveVUs)

	fmt.Fprintf(r.writer, "Latency: p50: %s | p95: %s | p99: %s | max: %s\n",
		formatLatency(stats.P50), formatLatency(stats.P95),
		formatLatency(stats.P99), formatLatency(stats.Max))

	fmt.Fprint(r.writer, "\033[4A")
}

// ClearProgress clears the progress display
func (r *Reporter) ClearProgress() {
	if r.noProgress {
		return
	}
	fmt.Fprint(r.writer, "\033[4B\r\033[K\033[A\r\033[K\033[A\r\033[K\033[A\r\033[K")
}

func (r *Reporter) errorColor(n int64) *color.Color {
	if n > 0 {
		return r.red
	}
	return r.plain
}

// Summary prints the final summary
func (r *Reporter) Summary(result *Result) {
	s := result.Summary

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "BENCH SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(s.Duration))
	fmt.Fprint(r.writer, "Total:      ")
	r.bold.Fprint(r.writer, formatNumber(s.TotalRequests))
	fmt.Fprintf(r.writer, " requests (%.1f req/s)\n", s.RPS)

	fmt.Fprint(r.writer, "Success:    ")
	r.green.Fprint(r.writer, formatNumber(s.SuccessCount))
	fmt.Fprintf(r.writer, " (%.1f%%)\n", s.SuccessRate*100)

	fmt.Fprint(r.writer, "Failed:     ")
	r.errorColor(s.ErrorCount).Fprint(r.writer, formatNumber(s.ErrorCount))
	fmt.Fprintf(r.writer, " (%.1f%%)\n", s.ErrorRate*100)

	if s.TimeoutCount > 0 {
		fmt.Fprint(r.writer, "Timeouts:   ")
		r.yellow.Fprintln(r.writer, formatNumber(s.TimeoutCount))
	}

	if len(s.StatusCodes) > 0 {
		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		parts := make([]string, len(codes))
		for i, code := range codes {
			parts[i] = fmt.Sprintf("%d: %s", code, formatNumber(s.StatusCodes[code]))
		}
		fmt.Fprintf(r.writer, "Statuses:   %s\n", strings.Join(parts, " | "))
	}

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "CONNECTIONS")
	fmt.Fprintf(r.writer, "  opened: %s | reused: %s (%.1f%%) | force-closed: %s\n",
		formatNumber(s.Connects), formatNumber(s.ReusedCount), s.ReuseRate*100, formatNumber(s.ForceCloses))

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "LATENCY (ms)")
	fmt.Fprintf(r.writer, "  p50: %-6s | p95: %-6s | p99: %-6s | max: %s\n",
		formatLatencyMs(s.P50), formatLatencyMs(s.P95),
		formatLatencyMs(s.P99), formatLatencyMs(s.Max))
	fmt.Fprintf(r.writer, "  min: %-6s | mean: %-5s | stddev: %s\n",
		formatLatencyMs(s.Min), formatLatencyMs(s.Mean), formatLatencyMs(s.StdDev))

	if r.verbose && len(s.Targets) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "PER-TARGET BREAKDOWN")
		names := make([]string, 0, len(s.Targets))
		for name := range s.Targets {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			ts := s.Targets[name]
			fmt.Fprintf(r.writer, "  %s:\n", name)
			fmt.Fprintf(r.writer, "    Total: %s | Errors: %s | Reused: %s\n",
				formatNumber(ts.Total), formatNumber(ts.Errors), formatNumber(ts.Reused))
			fmt.Fprintf(r.writer, "    p50: %s | p95: %s | p99: %s\n",
				formatLatency(ts.P50), formatLatency(ts.P95), formatLatency(ts.P99))
		}
	}

	if len(result.Thresholds) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "THRESHOLDS")
		for _, tr := range result.Thresholds {
			if tr.Passed {
				r.green.Fprint(r.writer, "  ✓ ")
			} else {
				r.red.Fprint(r.writer, "  ✗ ")
			}
			fmt.Fprintf(r.writer, "%s %s    (actual: %s)\n", tr.Name, tr.Expected, tr.Actual)
		}

		fmt.Fprintln(r.writer)
		if result.Passed {
			r.green.Fprintln(r.writer, "All thresholds passed!")
		} else {
			r.red.Fprintln(r.writer, "Some thresholds failed!")
		}
	}

	fmt.Fprintln(r.writer)
}

// JSONSummary writes the result as JSON with latencies in milliseconds
func (r *Reporter) JSONSummary(result *Result) error {
	s := result.Summary
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

	output := map[string]any{
		"duration": s.Duration.String(),
		"requests": map[string]any{
			"total":    s.TotalRequests,
			"success":  s.SuccessCount,
			"failed":   s.ErrorCount,
			"timeouts": s.TimeoutCount,
		},
		"rates": map[string]any{
			"rps":         s.RPS,
			"successRate": s.SuccessRate,
			"errorRate":   s.ErrorRate,
			"reuseRate":   s.ReuseRate,
		},
		"connections": map[string]any{
			"opened":      s.Connects,
			"reused":      s.ReusedCount,
			"forceClosed": s.ForceCloses,
		},
		"latency": map[string]any{
			"p50":    ms(s.P50),
			"p95":    ms(s.P95),
			"p99":    ms(s.P99),
			"min":    ms(s.Min),
			"max":    ms(s.Max),
			"mean":   ms(s.Mean),
			"stddev": ms(s.StdDev),
		},
		"statusCodes": s.StatusCodes,
		"passed":      result.Passed,
	}
	if len(result.Thresholds) > 0 {
		output["thresholds"] = result.Thresholds
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// Error prints an error message
func (r *Reporter) Error(format string, args ...any) {
	r.red.Fprintf(r.writer, "Error: "+format+"\n", args...)
}

// Info prints an info message
func (r *Reporter) Info(format string, args ...any) {
	fmt.Fprintf(r.writer, format+"\n", args...)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}

func formatLatency(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dμs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	switch {
	case ms < 1:
		return fmt.Sprintf("%.2f", ms)
	case ms < 10:
		return fmt.Sprintf("%.1f", ms)
	}
	return fmt.Sprintf("%.0f", ms)
}

// formatNumber formats a number with thousands separators
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}

	var b strings.Builder
	head := len(s) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(s[:head])
	for i := head; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
