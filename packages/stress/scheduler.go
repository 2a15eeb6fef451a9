package stress

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler paces requests and picks which target each one hits
type Scheduler struct {
	config  *Config
	limiter *rate.Limiter
	sem     chan struct{}

	mu          sync.Mutex
	targets     []*Target
	totalWeight int
}

// NewScheduler creates a new scheduler with the given config
func NewScheduler(config *Config) *Scheduler {
	s := &Scheduler{config: config}

	if config.Mode == RateMode && config.Rate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.CurrentRate(0)), 1)
	}

	s.sem = make(chan struct{}, max(config.MaxVUs, 1))
	return s
}

// AddTarget registers a target for selection
func (s *Scheduler) AddTarget(t *Target) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Weight < 1 {
		t.Weight = 1
	}
	s.targets = append(s.targets, t)
	s.totalWeight += t.Weight
}

// TargetCount returns the number of registered targets
func (s *Scheduler) TargetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}

// Targets returns a copy of the registered targets
func (s *Scheduler) Targets() []*Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Target(nil), s.targets...)
}

// Select picks a target by weight
func (s *Scheduler) Select() *Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch len(s.targets) {
	case 0:
		return nil
	case 1:
		return s.targets[0]
	}

	r := rand.IntN(s.totalWeight)
	for _, t := range s.targets {
		r -= t.Weight
		if r < 0 {
			return t
		}
	}
	return s.targets[len(s.targets)-1]
}

// Wait blocks on the rate limiter in rate mode and returns immediately otherwise
func (s *Scheduler) Wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// Acquire takes a concurrency slot
func (s *Scheduler) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a concurrency slot
func (s *Scheduler) Release() {
	<-s.sem
}

func (s *Scheduler) rampProgress(elapsed time.Duration) float64 {
	if s.config.RampUp <= 0 || elapsed >= s.config.RampUp {
		return 1
	}
	return float64(elapsed) / float64(s.config.RampUp)
}

// CurrentRate returns the target rate after linear ramp-up
func (s *Scheduler) CurrentRate(elapsed time.Duration) float64 {
	// a zero limit would block forever, so ramp from a trickle
	return max(s.config.Rate*s.rampProgress(elapsed), 0.1)
}

// CurrentVUs returns the target VU count after linear ramp-up
func (s *Scheduler) CurrentVUs(elapsed time.Duration) int {
	return int(float64(s.config.VUs) * s.rampProgress(elapsed))
}

// UpdateRate changes the limiter rate
func (s *Scheduler) UpdateRate(r float64) {
	if s.limiter != nil && r > 0 {
		s.limiter.SetLimit(rate.Limit(r))
	}
}

// executor issues one request for a target
type executor func(ctx context.Context, t *Target)

// VUPool runs virtual users that issue requests back to back
type VUPool struct {
	scheduler *Scheduler
	config    *Config
	metrics   *Metrics
	exec      executor

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewVUPool creates a new VU pool
func NewVUPool(scheduler *Scheduler, config *Config, metrics *Metrics, exec executor) *VUPool {
	return &VUPool{
		scheduler: scheduler,
		config:    config,
		metrics:   metrics,
		exec:      exec,
	}
}

// Start launches the initial VUs
func (p *VUPool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.Scale(max(p.scheduler.CurrentVUs(0), 1))
}

// Scale adjusts the number of running VUs
func (p *VUPool) Scale(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.cancels) < target {
		ctx, cancel := context.WithCancel(p.ctx)
		p.cancels = append(p.cancels, cancel)
		p.wg.Add(1)
		go p.run(ctx)
	}
	for len(p.cancels) > target {
		last := len(p.cancels) - 1
		p.cancels[last]()
		p.cancels = p.cancels[:last]
	}
}

func (p *VUPool) run(ctx context.Context) {
	defer p.wg.Done()

	p.metrics.IncrementActiveVUs()
	defer p.metrics.DecrementActiveVUs()

	for ctx.Err() == nil {
		t := p.scheduler.Select()
		if t == nil {
			return
		}
		if err := p.scheduler.Acquire(ctx); err != nil {
			return
		}
		p.exec(ctx, t)
		p.scheduler.Release()

		if p.config.ThinkTime > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.ThinkTime):
			}
		}
	}
}

// Stop cancels every VU and waits for them to return
func (p *VUPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Count returns the current number of running VUs
func (p *VUPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}
