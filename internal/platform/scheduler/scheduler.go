package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"
)

// JobFunc is a scheduled unit of work. ctx is cancelled when the scheduler
// shuts down.
type JobFunc func(ctx context.Context) error

// Scheduler runs named jobs on cron specs (seconds field first, e.g.
// "0 59 * * * *"). A job still running when its next tick arrives is not
// started again.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	stopped bool
	wg      sync.WaitGroup
	jobs    map[string]*atomic.Bool
}

type namedJob struct {
	name string
	fn   func()
}

func (j namedJob) Run() { j.fn() }

func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:   cron.NewWithLocation(loc),
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    context.Background(),
		jobs:   make(map[string]*atomic.Bool),
	}
}

// Add registers job under name. Names must be unique.
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}

	busy := &atomic.Bool{}
	schedule, err := cron.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule %q with %q: %w", name, spec, err)
	}
	s.cron.Schedule(schedule, namedJob{name: name, fn: func() { s.run(name, busy, job) }})
	s.jobs[name] = busy
	s.logger.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) run(name string, busy *atomic.Bool, job JobFunc) {
	if !busy.CompareAndSwap(false, true) {
		s.logger.Warn().Str("job", name).Msg("previous run still in progress, skipping")
		return
	}
	defer busy.Store(false)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	log := s.logger.With().Str("job", name).Logger()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 8<<10)
			stack = stack[:runtime.Stack(stack, false)]
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", stack).Msg("job panicked")
		}
	}()

	if err := job(ctx); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("job finished")
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Msg("scheduler started")

	<-ctx.Done()
	s.cron.Stop()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// Next reports when name fires next, or the zero time if it is unknown or
// the scheduler is not running.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	for _, e := range s.cron.Entries() {
		if j, ok := e.Job.(namedJob); ok && j.name == name {
			return e.Next
		}
	}
	return time.Time{}
}
