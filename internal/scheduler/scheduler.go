// Package scheduler runs the periodic alert scans. Jobs carry either a plain
// interval ("15m") or a 5-field cron expression ("0 8 * * *"); a coarse
// ticker checks due jobs and runs them sequentially in one background
// goroutine. Job errors are logged and never propagated, the next tick
// retries naturally.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTick is how often the scheduler checks for due jobs.
const DefaultTick = 30 * time.Second

// timeNow is swapped out in tests.
var timeNow = time.Now

// Job is one schedulable unit of work.
type Job struct {
	// Name identifies the job in logs and TriggerNow calls.
	Name string
	// Schedule is a time.ParseDuration interval or a 5-field cron expression.
	Schedule string
	// Run does the work. Errors are logged by the scheduler.
	Run func(ctx context.Context) error
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name     string
	Schedule string
	LastRun  time.Time // zero until the first run
	NextRun  time.Time
}

// scheduleSpec is a parsed Job.Schedule. Exactly one of interval or cron is set.
type scheduleSpec struct {
	interval time.Duration
	cron     cron.Schedule
}

func parseSchedule(schedule string) (scheduleSpec, error) {
	if d, err := time.ParseDuration(schedule); err == nil {
		if d <= 0 {
			return scheduleSpec{}, fmt.Errorf("interval must be positive: %q", schedule)
		}
		return scheduleSpec{interval: d}, nil
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return scheduleSpec{}, fmt.Errorf("failed to parse schedule %q: %w", schedule, err)
	}
	return scheduleSpec{cron: sched}, nil
}

// due reports whether a job last run at lastRun should run now. A job that
// has never run is due on the first tick.
func (s scheduleSpec) due(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	if s.interval > 0 {
		return now.Sub(lastRun) >= s.interval
	}
	return !s.cron.Next(lastRun).After(now)
}

// next returns when the job is due again after a run at lastRun.
func (s scheduleSpec) next(lastRun, now time.Time) time.Time {
	if lastRun.IsZero() {
		return now
	}
	if s.interval > 0 {
		return lastRun.Add(s.interval)
	}
	return s.cron.Next(lastRun)
}

type jobState struct {
	job     Job
	spec    scheduleSpec
	lastRun time.Time
	forced  bool
}

// Scheduler checks registered jobs on a coarse tick and runs the due ones.
type Scheduler struct {
	mu   sync.Mutex
	jobs []*jobState
	tick time.Duration
	now  func() time.Time
}

// New creates a scheduler for the given jobs. Job names must be unique and
// schedules must parse.
func New(jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{
		tick: DefaultTick,
		now:  func() time.Time { return timeNow() },
	}
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.Name == "" {
			return nil, fmt.Errorf("job name cannot be empty")
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true
		if job.Run == nil {
			return nil, fmt.Errorf("job %q has no run function", job.Name)
		}
		spec, err := parseSchedule(job.Schedule)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", job.Name, err)
		}
		s.jobs = append(s.jobs, &jobState{job: job, spec: spec})
	}
	return s, nil
}

// Start launches the scheduler loop in a background goroutine. The loop
// exits when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	names := make([]string, 0, len(s.jobs))
	for _, st := range s.jobs {
		names = append(names, st.job.Name)
	}
	slog.Info("Starting scan scheduler",
		"jobs", names,
		"tick", s.tick,
	)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scan scheduler stopped")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs every due job once, sequentially in registration order.
func (s *Scheduler) RunDue(ctx context.Context) {
	now := s.now()
	for _, st := range s.jobs {
		s.mu.Lock()
		due := st.forced || st.spec.due(st.lastRun, now)
		if due {
			// Clear before the run so a trigger issued during the run
			// survives for the next tick.
			st.forced = false
			st.lastRun = now
		}
		s.mu.Unlock()

		if !due {
			continue
		}
		s.runJob(ctx, st.job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		slog.Error("Scheduled job failed",
			"job", job.Name,
			"error", err,
		)
		return
	}
	slog.Debug("Scheduled job finished",
		"job", job.Name,
		"duration", time.Since(start),
	)
}

// TriggerNow marks the named job to run on the next tick regardless of its
// schedule. Returns an error for an unknown job name.
func (s *Scheduler) TriggerNow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.jobs {
		if st.job.Name == name {
			st.forced = true
			slog.Info("Job triggered manually", "job", name)
			return nil
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

// Status returns the registered jobs with their last and next run times.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, JobStatus{
			Name:     st.job.Name,
			Schedule: st.job.Schedule,
			LastRun:  st.lastRun,
			NextRun:  st.spec.next(st.lastRun, now),
		})
	}
	return out
}

// GateHours wraps a run function so it only executes between startHour and
// endHour, both inclusive. Outside the window the run is skipped quietly.
func GateHours(startHour, endHour int, run func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		hour := timeNow().Hour()
		if hour < startHour || hour > endHour {
			slog.Debug("Job skipped outside its hour window",
				"hour", hour,
				"window_start", startHour,
				"window_end", endHour,
			)
			return nil
		}
		return run(ctx)
	}
}
