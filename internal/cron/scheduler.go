// Package cron fires scheduled jobs that re-enter the system as synthetic
// inbound messages. The scheduler matches each job's cron expression against
// the current wall-clock minute and guarantees at most one firing per job
// per minute, keyed by epoch minute rather than timer arrivals.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/pkg/models"
)

const defaultTickInterval = time.Minute

// TriggerFunc receives each due job. The host wires this to inject a
// synthetic inbound message through the router.
type TriggerFunc func(ctx context.Context, job models.CronJob) error

// Scheduler runs registered cron jobs. Ticks are stamped with the epoch
// minute (unix milliseconds / 60000); a tick landing in an already-processed
// minute is a no-op, which keeps firing at-most-once per minute across DST
// shifts and timer jitter.
type Scheduler struct {
	onTrigger TriggerFunc
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	tick      time.Duration
	history   *History

	mu         sync.Mutex
	jobs       map[string]*entry
	lastMinute int64
	running    bool
	stop       chan struct{}
	wg         sync.WaitGroup
}

type entry struct {
	job      models.CronJob
	schedule Schedule
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With("component", "cron")
		}
	}
}

// WithMetrics records firings to the given metrics set.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tick = interval
		}
	}
}

// WithHistoryLimit bounds the firing history kept in memory.
func WithHistoryLimit(limit int) Option {
	return func(s *Scheduler) {
		if limit > 0 {
			s.history = NewHistory(limit)
		}
	}
}

// NewScheduler creates a stopped scheduler that invokes onTrigger for each
// due job.
func NewScheduler(onTrigger TriggerFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		onTrigger:  onTrigger,
		logger:     slog.Default().With("component", "cron"),
		now:        time.Now,
		tick:       defaultTickInterval,
		history:    NewHistory(defaultHistoryLimit),
		jobs:       make(map[string]*entry),
		lastMinute: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers a job, replacing any job with the same name. The cron
// expression is parsed eagerly.
func (s *Scheduler) AddJob(job models.CronJob) error {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	schedule, err := Parse(job.Schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[job.Name] = &entry{job: job, schedule: schedule}
	s.mu.Unlock()
	return nil
}

// RemoveJob unregisters a job and reports whether it existed.
func (s *Scheduler) RemoveJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; !ok {
		return false
	}
	delete(s.jobs, name)
	return true
}

// ReplaceJobs swaps the whole job set. Every expression is parsed before
// any change is applied, so a bad entry leaves the current set intact.
func (s *Scheduler) ReplaceJobs(jobs []models.CronJob) error {
	next := make(map[string]*entry, len(jobs))
	for _, job := range jobs {
		if strings.TrimSpace(job.Name) == "" {
			return fmt.Errorf("job name is required")
		}
		schedule, err := Parse(job.Schedule)
		if err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
		next[job.Name] = &entry{job: job, schedule: schedule}
	}
	s.mu.Lock()
	s.jobs = next
	s.mu.Unlock()
	return nil
}

// ListJobs returns the registered jobs sorted by name.
func (s *Scheduler) ListJobs() []models.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CronJob, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Size returns the number of registered jobs.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// History returns the recent firing record.
func (s *Scheduler) History() *History {
	return s.history
}

// Start begins ticking. The first tick runs before Start returns, so jobs
// due in the current minute fire immediately. Starting a running scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.runTick(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.runTick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit. Safe at any time,
// including before Start and repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

// Tick runs one scheduling pass immediately and returns how many jobs
// fired. Ticks within an already-processed minute do nothing.
func (s *Scheduler) Tick(ctx context.Context) int {
	return s.runTick(ctx)
}

func (s *Scheduler) runTick(ctx context.Context) int {
	now := s.now()
	minute := now.UnixMilli() / 60_000

	s.mu.Lock()
	if minute == s.lastMinute {
		s.mu.Unlock()
		return 0
	}
	s.lastMinute = minute
	var due []models.CronJob
	for _, e := range s.jobs {
		if e.job.Enabled && e.schedule.Matches(now) {
			due = append(due, e.job)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	for _, job := range due {
		s.fire(ctx, job, now)
	}
	return len(due)
}

// fire invokes the trigger for one job. Handler errors and panics are
// contained so a broken handler cannot take down the scheduler.
func (s *Scheduler) fire(ctx context.Context, job models.CronJob, started time.Time) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panicked: %v", r)
			}
		}()
		if s.onTrigger == nil {
			err = fmt.Errorf("no trigger configured")
			return
		}
		err = s.onTrigger(ctx, job)
	}()

	status := "success"
	errText := ""
	if err != nil {
		status = "error"
		errText = err.Error()
		s.logger.Warn("cron job failed", "job", job.Name, "error", err)
	} else {
		s.logger.Debug("cron job fired", "job", job.Name)
	}
	s.metrics.RecordSchedulerFiring(job.Name, status)
	s.history.Record(Firing{
		Job:       job.Name,
		StartedAt: started,
		Duration:  s.now().Sub(started),
		Error:     errText,
	})
}
