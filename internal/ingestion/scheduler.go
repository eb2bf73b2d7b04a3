package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a periodic task run by the Scheduler.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	// Immediate runs the job once at start instead of waiting one interval.
	Immediate bool
}

// Scheduler runs jobs on their own tickers until its context is cancelled.
// A run that is still in flight when a tick fires delays that job's next run
// instead of overlapping it.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	jobs    []Job
	running bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Add registers a job. Jobs must be added before Run.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("job %q needs a run function and a positive interval", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Run blocks until ctx is cancelled and every job goroutine has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started", zap.Int("jobs", len(jobs)))

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()

	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	logger := s.logger.With(zap.String("job", job.Name))

	if job.Immediate {
		s.runOnce(ctx, logger, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, logger, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, logger *zap.Logger, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Warn("scheduled job failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	logger.Debug("scheduled job finished", zap.Duration("duration", time.Since(start)))
}
