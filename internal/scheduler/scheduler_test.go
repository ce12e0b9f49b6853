package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

type stubJob struct {
	name        string
	pattern     string
	immediately bool
	execute     func(ctx context.Context) error
}

func (j *stubJob) Name() string         { return j.name }
func (j *stubJob) Pattern() string      { return j.pattern }
func (j *stubJob) RunImmediately() bool { return j.immediately }
func (j *stubJob) Execute(ctx context.Context) error {
	if j.execute == nil {
		return nil
	}
	return j.execute(ctx)
}

func TestRegisterRejectsInvalidPattern(t *testing.T) {
	s := New(logx.Nop(), nil)

	err := s.Register(&stubJob{name: "bad", pattern: "not a cron pattern"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	var ise *InvalidScheduleError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "bad", ise.Job)
}

func TestRegisterAcceptsSixFieldAndDescriptorPatterns(t *testing.T) {
	s := New(logx.Nop(), nil)

	for _, pattern := range []string{"*/30 * * * * *", "0 * * * *", "@every 5m", "* * * * *"} {
		err := s.Register(&stubJob{name: "j-" + pattern, pattern: pattern})
		assert.NoError(t, err, pattern)
	}
}

func TestRunImmediatelyExecutesBeforeSchedule(t *testing.T) {
	s := New(logx.Nop(), nil)
	ran := make(chan struct{})
	var once sync.Once

	// Pattern far in the future so only the eager run can fire.
	err := s.Register(&stubJob{
		name:        "eager",
		pattern:     "0 0 1 1 *",
		immediately: true,
		execute: func(context.Context) error {
			once.Do(func() { close(ran) })
			return nil
		},
	})
	require.NoError(t, err)

	s.Start()
	defer s.Shutdown(context.Background())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("run-immediately job did not execute")
	}
}

func TestJobsDoNotFireBeforeStart(t *testing.T) {
	s := New(logx.Nop(), nil)
	var runs atomic.Int32

	err := s.Register(&stubJob{
		name:        "paused",
		pattern:     "@every 1s",
		immediately: true,
		execute: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	time.Sleep(1200 * time.Millisecond)
	assert.Zero(t, runs.Load(), "timers must stay paused until Start")
}

func TestOverrunProtectionSkipsConcurrentTick(t *testing.T) {
	s := New(logx.Nop(), nil)

	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32
	var runs atomic.Int32

	err := s.Register(&stubJob{
		name:    "slow",
		pattern: "@every 1s",
		execute: func(context.Context) error {
			n := concurrent.Add(1)
			if n > maxConcurrent.Load() {
				maxConcurrent.Store(n)
			}
			runs.Add(1)
			time.Sleep(1600 * time.Millisecond) // longer than the interval
			concurrent.Add(-1)
			return nil
		},
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(3700 * time.Millisecond)
	s.Shutdown(context.Background())

	assert.Equal(t, int32(1), maxConcurrent.Load(), "two invocations must never run concurrently")
	assert.GreaterOrEqual(t, runs.Load(), int32(2), "job should keep running after a skipped tick")
}

func TestJobErrorDoesNotUnregisterJob(t *testing.T) {
	s := New(logx.Nop(), nil)
	var runs atomic.Int32

	err := s.Register(&stubJob{
		name:    "flaky",
		pattern: "@every 1s",
		execute: func(context.Context) error {
			if runs.Add(1) == 1 {
				return errors.New("boom")
			}
			return nil
		},
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(2200 * time.Millisecond)
	s.Shutdown(context.Background())

	assert.GreaterOrEqual(t, runs.Load(), int32(2), "job must keep its schedule after a failure")
}

func TestJobPanicIsContained(t *testing.T) {
	s := New(logx.Nop(), nil)
	var runs atomic.Int32

	err := s.Register(&stubJob{
		name:    "panicky",
		pattern: "@every 1s",
		execute: func(context.Context) error {
			if runs.Add(1) == 1 {
				panic("boom")
			}
			return nil
		},
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(2200 * time.Millisecond)
	s.Shutdown(context.Background())

	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestShutdownWaitsForEagerTick(t *testing.T) {
	s := New(logx.Nop(), nil)
	var finished atomic.Bool

	// No wait between Start and Shutdown: the eager tick must already be
	// registered with the wait group when Shutdown runs.
	require.NoError(t, s.Register(&stubJob{
		name:        "eager-slow",
		pattern:     "0 0 1 1 *",
		immediately: true,
		execute: func(context.Context) error {
			time.Sleep(200 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	}))

	s.Start()
	require.NoError(t, s.Shutdown(context.Background()))
	assert.True(t, finished.Load(), "shutdown must wait for an eager tick launched by Start")
}

func TestShutdownReturnsContextErrorWithTickInFlight(t *testing.T) {
	s := New(logx.Nop(), nil)
	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, s.Register(&stubJob{
		name:        "stuck",
		pattern:     "0 0 1 1 *",
		immediately: true,
		execute: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	s.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	s.wg.Wait()
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := New(logx.Nop(), nil)
	require.NoError(t, s.Register(&stubJob{name: "j", pattern: "@every 1h"}))

	s.Start()
	s.Shutdown(context.Background())
	s.Shutdown(context.Background()) // second stop is a no-op
}
