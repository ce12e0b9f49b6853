// Package scheduler owns the recurring reporting jobs and the shared cron
// clock that drives them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/depthbomb/weathergoat-sub000/internal/observability"
	logx "github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// ErrInvalidSchedule is matched by the error returned from Register when a
// job's schedule pattern does not parse.
var ErrInvalidSchedule = errors.New("scheduler: invalid schedule pattern")

type InvalidScheduleError struct {
	Job     string
	Pattern string
	Err     error
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("scheduler: job %q has invalid schedule %q: %v", e.Job, e.Pattern, e.Err)
}

func (e *InvalidScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

func (e *InvalidScheduleError) Unwrap() error { return e.Err }

// Job is one registered unit of periodic work. One concrete type exists per
// reporter; jobs hold no authoritative state, only transient per-tick data.
type Job interface {
	Name() string
	// Pattern is a cron expression. Both 5-field and 6-field (leading
	// seconds) forms are accepted, as are @every descriptors.
	Pattern() string
	// RunImmediately requests one eager execution when Start is called,
	// before any timer-driven invocation.
	RunImmediately() bool
	Execute(ctx context.Context) error
}

type runState struct {
	mu      sync.Mutex
	running bool
}

// tryAcquire marks the job running unless it already is.
func (r *runState) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *runState) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

type entry struct {
	job     Job
	state   *runState
	entryID cron.EntryID
}

// Service registers, runs, and tears down recurring jobs. Timers stay paused
// until Start; Shutdown stops every timer and is idempotent.
type Service struct {
	log     logx.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	parser  cron.Parser
	c       *cron.Cron
	entries []*entry
	started bool
	stopped bool

	// wg tracks in-flight job bodies. Shutdown waits for them (bounded by
	// the caller's context) but never cancels them mid-tick.
	wg sync.WaitGroup
}

func New(log logx.Logger, metrics *observability.Metrics) *Service {
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		log:     log,
		metrics: metrics,
		parser:  parser,
		c:       cron.New(cron.WithParser(parser)),
	}
}

// Register validates the job's pattern and binds it to a paused timer. The
// timer does not fire until Start.
func (s *Service) Register(job Job) error {
	if _, err := s.parser.Parse(job.Pattern()); err != nil {
		return &InvalidScheduleError{Job: job.Name(), Pattern: job.Pattern(), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{job: job, state: &runState{}}
	id, err := s.c.AddFunc(job.Pattern(), func() {
		s.run(e)
	})
	if err != nil {
		return &InvalidScheduleError{Job: job.Name(), Pattern: job.Pattern(), Err: err}
	}
	e.entryID = id
	s.entries = append(s.entries, e)

	s.log.Debug("job registered",
		logx.String("job", job.Name()),
		logx.String("pattern", job.Pattern()),
		logx.Bool("run_immediately", job.RunImmediately()))
	return nil
}

// NextRun reports when the named job fires next. Zero before Start or for
// unknown names.
func (s *Service) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.job.Name() == name {
			return s.c.Entry(e.entryID).Next
		}
	}
	return time.Time{}
}

// Start activates all registered timers. Jobs registered with RunImmediately
// execute once eagerly first, independent of their schedule.
func (s *Service) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	entries := make([]*entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	for _, e := range entries {
		// Acquire and register with the wait group before spawning so a
		// Shutdown racing an eager tick still waits for it.
		if e.job.RunImmediately() && e.state.tryAcquire() {
			s.wg.Add(1)
			go s.runAcquired(e)
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(entries)))
}

// Shutdown stops every timer and waits (bounded by ctx) for in-flight job
// bodies to finish naturally. It never cancels a running tick. Returns
// ctx.Err() when the deadline passes with ticks still in flight. Idempotent.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	c := s.c
	s.mu.Unlock()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one tick of a job with overrun protection: if the previous
// run is still in flight the tick is skipped rather than run concurrently.
// Failures are caught here and never unregister the job.
func (s *Service) run(e *entry) {
	name := e.job.Name()
	if !e.state.tryAcquire() {
		s.log.Warn("job tick skipped, previous run still in flight", logx.String("job", name))
		if s.metrics != nil {
			s.metrics.JobOverruns.WithLabelValues(name).Inc()
		}
		return
	}
	s.wg.Add(1)
	s.runAcquired(e)
}

// runAcquired executes one tick; the caller holds the run state and the wait
// group registration.
func (s *Service) runAcquired(e *entry) {
	name := e.job.Name()

	start := time.Now()
	defer func() {
		took := time.Since(start)
		if r := recover(); r != nil {
			s.log.Error("panic in job",
				logx.String("job", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			if s.metrics != nil {
				s.metrics.JobRuns.WithLabelValues(name, "error").Inc()
			}
		}
		if s.metrics != nil {
			s.metrics.JobDuration.WithLabelValues(name).Observe(took.Seconds())
		}
		e.state.release()
		s.wg.Done()
	}()

	if err := e.job.Execute(context.Background()); err != nil {
		s.log.Error("job failed", logx.String("job", name), logx.Err(err))
		if s.metrics != nil {
			s.metrics.JobRuns.WithLabelValues(name, "error").Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(name, "ok").Inc()
	}
}
