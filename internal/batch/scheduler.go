// Package batch triggers worker runs on cron schedules.
package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/hochfrequenz/musicgen-worker/internal/config"
)

// RunFunc executes one scheduled run
type RunFunc func(ctx context.Context, sched config.ScheduleConfig) error

// Scheduler manages scheduled runs
type Scheduler struct {
	configs  map[string]config.ScheduleConfig
	parsed   map[string]cron.Schedule
	lastRun  map[string]time.Time
	running  map[string]bool
	logger   arbor.ILogger
	now      func() time.Time
	interval time.Duration
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Schedules without a jobs file use
// defaultJobsFile. Nothing fires for times before the scheduler was created.
func NewScheduler(schedules []config.ScheduleConfig, defaultJobsFile string, logger arbor.ILogger) (*Scheduler, error) {
	s := &Scheduler{
		configs:  make(map[string]config.ScheduleConfig),
		parsed:   make(map[string]cron.Schedule),
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		logger:   logger,
		now:      time.Now,
		interval: time.Minute,
	}

	start := s.now()
	for _, cfg := range schedules {
		if cfg.Name == "" {
			return nil, fmt.Errorf("schedule name is required")
		}
		if _, dup := s.configs[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate schedule %q", cfg.Name)
		}
		sched, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: invalid cron expression: %w", cfg.Name, err)
		}
		if cfg.JobsFile == "" {
			cfg.JobsFile = defaultJobsFile
		}
		s.configs[cfg.Name] = cfg
		s.parsed[cfg.Name] = sched
		s.lastRun[cfg.Name] = start
	}

	return s, nil
}

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled run time for a schedule
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.parsed[name]
	if !ok {
		return time.Time{}
	}
	return sched.Next(s.now())
}

// ShouldRun returns true if a schedule is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.parsed[name]
	if !ok || s.running[name] {
		return false
	}

	nextRun := sched.Next(s.lastRun[name])
	return !s.now().Before(nextRun)
}

// MarkRunning marks a schedule as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a schedule as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// GetConfig returns the config for a schedule
func (s *Scheduler) GetConfig(name string) (config.ScheduleConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok
}

// ListSchedules returns all schedule names, sorted
func (s *Scheduler) ListSchedules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tick starts every due schedule and returns the names it started
func (s *Scheduler) Tick(ctx context.Context, runFunc RunFunc) []string {
	var started []string
	for _, name := range s.ListSchedules() {
		if !s.ShouldRun(name) {
			continue
		}
		cfg, _ := s.GetConfig(name)
		s.MarkRunning(name)
		started = append(started, name)

		s.wg.Add(1)
		go func(c config.ScheduleConfig) {
			defer s.wg.Done()
			defer s.MarkComplete(c.Name)

			s.logger.Info().Str("schedule", c.Name).Str("jobs_file", c.JobsFile).Msg("Scheduled run starting")
			if err := runFunc(ctx, c); err != nil {
				s.logger.Error().Err(err).Str("schedule", c.Name).Msg("Scheduled run failed")
			}
		}(cfg)
	}
	return started
}

// Start runs the scheduler loop until ctx is cancelled, then waits for
// in-flight runs to return
func (s *Scheduler) Start(ctx context.Context, runFunc RunFunc) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for _, name := range s.ListSchedules() {
		s.logger.Info().Str("schedule", name).Str("next", s.NextRun(name).Format(time.RFC3339)).Msg("Schedule registered")
	}

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx, runFunc)
		}
	}
}
