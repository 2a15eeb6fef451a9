package stress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"go.uber.org/zap"
)

// Runner executes bench runs
type Runner struct {
	config    *Config
	client    *webclient.Client
	scheduler *Scheduler
	metrics   *Metrics
	reporter  *Reporter
	logger    *zap.Logger
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

// WithClient sets the client requests are issued through
func WithClient(client *webclient.Client) RunnerOption {
	return func(r *Runner) {
		r.client = client
	}
}

// WithReporter sets the reporter
func WithReporter(reporter *Reporter) RunnerOption {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

// WithLogger sets the logger for per-request failures
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new bench runner
func NewRunner(config *Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		config:    config,
		metrics:   NewMetrics(),
		scheduler: NewScheduler(config),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		r.client = webclient.NewClient()
	}
	if r.reporter == nil {
		r.reporter = NewReporter()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	return r
}

// AddTarget registers a request the run will issue
func (r *Runner) AddTarget(t Target) {
	if t.Name == "" {
		t.Name = t.Method + " " + t.URL
	}
	r.scheduler.AddTarget(&t)
}

// Run executes the bench for the configured duration
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if r.scheduler.TargetCount() == 0 {
		return nil, fmt.Errorf("no targets to bench")
	}

	r.reporter.Header(r.config, r.scheduler.Targets())

	before := r.client.Stats()
	r.metrics.Start()

	ctx, cancel := context.WithTimeout(ctx, r.config.Duration)
	defer cancel()

	progressDone := make(chan struct{})
	go r.progressLoop(progressDone)

	if r.config.Mode == VUMode {
		r.runVUMode(ctx)
	} else {
		r.runRateMode(ctx)
	}

	r.metrics.Stop()
	close(progressDone)
	r.reporter.ClearProgress()

	after := r.client.Stats()
	summary := r.metrics.GetSummary()
	summary.Connects = after.Connects - before.Connects
	summary.ForceCloses = after.ForceCloses - before.ForceCloses

	var thresholds []ThresholdResult
	if r.config.Thresholds.HasThresholds() {
		thresholds = EvaluateThresholds(summary, r.config.Thresholds)
	}

	result := &Result{Summary: summary, Thresholds: thresholds}
	result.Passed = !result.HasThresholdFailures()
	return result, nil
}

func (r *Runner) runRateMode(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	start := time.Now()
	lastRamp := start

	for ctx.Err() == nil {
		if r.config.RampUp > 0 && time.Since(lastRamp) >= 100*time.Millisecond {
			lastRamp = time.Now()
			r.scheduler.UpdateRate(r.scheduler.CurrentRate(time.Since(start)))
		}

		if err := r.scheduler.Wait(ctx); err != nil {
			return
		}
		target := r.scheduler.Select()
		if err := r.scheduler.Acquire(ctx); err != nil {
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.scheduler.Release()
			r.execute(ctx, target)
		}()
	}
}

func (r *Runner) runVUMode(ctx context.Context) {
	pool := NewVUPool(r.scheduler, r.config, r.metrics, r.execute)
	pool.Start(ctx)

	if r.config.RampUp > 0 {
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			start := time.Now()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					pool.Scale(r.scheduler.CurrentVUs(time.Since(start)))
				}
			}
		}()
	}

	<-ctx.Done()
	pool.Stop()
}

// execute issues one request and records its outcome. Requests already in
// flight when the run ends are allowed to finish.
func (r *Runner) execute(ctx context.Context, t *Target) {
	start := time.Now()
	resp, err := r.client.Do(context.WithoutCancel(ctx), t.Method, t.URL, t.Body, t.Headers)
	sample := Sample{Name: t.Name, Duration: time.Since(start), Err: err}

	if err != nil {
		var statusErr *webclient.StatusError
		switch {
		case errors.As(err, &statusErr):
			sample.Status = statusErr.Code
		case errors.Is(err, os.ErrDeadlineExceeded):
			r.metrics.RecordTimeout(t.Name)
			return
		default:
			r.logger.Debug("bench request failed", zap.String("target", t.Name), zap.Error(err))
		}
		r.metrics.Record(sample)
		return
	}

	sample.Status = resp.StatusCode
	sample.Reused = resp.Reused
	if !resp.IsSuccess() {
		sample.Err = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	r.metrics.Record(sample)
}

func (r *Runner) progressLoop(done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.reporter.Progress(r.metrics.GetCurrentStats(), r.config.Duration)
		}
	}
}

// Result holds the final result of a bench run
type Result struct {
	Summary    *Summary          `json:"summary"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Passed     bool              `json:"passed"`
}

// HasThresholdFailures returns true if any thresholds failed
func (r *Result) HasThresholdFailures() bool {
	for _, tr := range r.Thresholds {
		if !tr.Passed {
			return true
		}
	}
	return false
}
