// Package scheduler runs renewals on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// ErrBusy is returned by RunNow when a run is already in progress.
var ErrBusy = errors.New("a job is already running")

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	timezone *time.Location
	timeout  time.Duration
	log      zerolog.Logger

	// ctx is cancelled by Stop so running jobs can abort.
	ctx    context.Context
	cancel context.CancelFunc

	// busy is held for the duration of any run, scheduled or immediate, so
	// runs never overlap.
	busy sync.Mutex

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a new scheduler with the given timezone. Each job run is
// bounded by timeout. Only one run happens at a time; a tick that arrives
// while another run is going is skipped.
func New(timezone string, timeout time.Duration, log zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	clog := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     c,
		timezone: loc,
		timeout:  timeout,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]cron.EntryID),
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 9 * * *" (at 9:00 AM daily)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		// Failures are logged by run; the next tick tries again.
		_ = s.run(context.Background(), name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Info().Str("job", name).Str("schedule", schedule).Msg("Added job")

	return nil
}

// run executes job under the scheduler timeout. The job context is
// cancelled by ctx or by Stop, whichever comes first.
func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	if !s.busy.TryLock() {
		s.log.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
		return ErrBusy
	}
	defer s.busy.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.log.Info().Str("job", name).Msg("Starting job")
	start := time.Now()

	err := job(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(start)).Msg("Job failed")
	} else {
		s.log.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("Job completed")
	}
	return err
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.log.Info().Str("timezone", s.timezone.String()).Msg("Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and cancels running jobs. The returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.log.Info().Msg("Stopping scheduler")
	s.cancel()
	return s.cron.Stop()
}

// RunNow immediately executes a job under the same timeout as scheduled
// runs. It returns ErrBusy without running job if another run is going.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	s.log.Info().Str("job", name).Msg("Running job now")
	return s.run(ctx, name, job)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ValidateSchedule reports whether spec is a standard five-field cron
// expression or descriptor such as "@daily".
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
