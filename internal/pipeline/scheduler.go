package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status describes the scheduler state.
type Status struct {
	Started         time.Time `json:"started"`
	LastRun         time.Time `json:"last_run,omitempty"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Runs            int       `json:"runs"`
	Running         bool      `json:"running"`
	Assets          int       `json:"assets"`
	FailedAssets    int       `json:"failed_assets"`
	Evaluations     int       `json:"evaluations"`
	SufficiencyPass bool      `json:"sufficiency_pass"`
}

// Scheduler runs a Job on an interval and on demand. Overlapping runs are
// skipped.
type Scheduler struct {
	job      *Job
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	status  Status
	trigger chan struct{}
}

// NewScheduler creates a scheduler. A zero interval runs only on demand.
func NewScheduler(job *Job, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		job:      job,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Run executes the job once immediately, then on every tick or trigger
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.status.Started = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	s.RunOnce(ctx)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.RunOnce(ctx)
		}
	}
}

// Trigger requests a run. It returns false when a run is already pending or
// in progress.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	running := s.status.Running
	s.mu.Unlock()
	if running {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunOnce runs the job unless a run is already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		s.logger.Warn().Msg("job already running, skipping")
		return
	}
	s.status.Running = true
	s.mu.Unlock()

	res, err := s.job.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastRun = time.Now().UTC()
	if err != nil {
		s.status.LastError = err.Error()
		s.logger.Error().Err(err).Msg("job failed")
		return
	}
	s.status.LastError = ""
	s.status.LastSuccess = s.status.LastRun
	s.status.Assets = len(res.Prepare.Assets)
	s.status.FailedAssets = len(res.Prepare.Errors)
	s.status.Evaluations = len(res.Evaluations)
	s.status.SufficiencyPass = res.Sufficiency.AllPass
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
