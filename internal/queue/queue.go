// Package queue serializes bursts of outbound chat-platform calls.
//
// Each Queue drains strictly FIFO, one action at a time, with a minimum
// enforced delay between executions. A poll tick that wants to edit twenty
// radar messages enqueues twenty actions and the downstream per-route rate
// limit never sees a burst.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	logx "github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// Action is one queued side-effecting call.
type Action func(ctx context.Context) error

// Queue is a named, rate-limited FIFO of actions. Independent queues do not
// interfere with each other. Contents are in-memory only; pending actions
// are lost on restart, which is acceptable because the reporting jobs
// regenerate the desired state on their next tick.
type Queue struct {
	name  string
	delay time.Duration
	clock clockwork.Clock
	log   logx.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	items    []Action
	draining bool
	depth    prometheus.Gauge
	wg       sync.WaitGroup
}

func New(name string, delay time.Duration, clock clockwork.Clock, log logx.Logger) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		name:   name,
		delay:  delay,
		clock:  clock,
		log:    log.With(logx.String("queue", name)),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (q *Queue) Name() string { return q.name }

// InstrumentDepth attaches a gauge tracking the number of pending actions.
func (q *Queue) InstrumentDepth(g prometheus.Gauge) {
	q.mu.Lock()
	q.depth = g
	q.mu.Unlock()
}

// setDepthLocked publishes the current backlog; callers hold q.mu.
func (q *Queue) setDepthLocked() {
	if q.depth != nil {
		q.depth.Set(float64(len(q.items)))
	}
}

// Enqueue appends fn and, if the queue was idle, starts the drain worker.
// Producers never execute actions inline.
func (q *Queue) Enqueue(fn Action) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.setDepthLocked()
	start := !q.draining
	if start {
		q.draining = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// Len reports the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the drain worker and waits for the in-flight action to finish.
// Pending actions are discarded. Idempotent.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}

// drain owns the queue until it runs empty. Only one drain worker exists per
// queue instance; Enqueue restarts it when new work arrives after idle.
func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.ctx.Err() != nil {
			q.draining = false
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items = q.items[1:]
		q.setDepthLocked()
		q.mu.Unlock()

		if err := fn(q.ctx); err != nil {
			// A failed action must not halt the queue.
			q.log.Error("queued action failed", logx.Err(err))
		}

		// The delay decision must look at the length after the action ran:
		// a producer may have appended while it was executing, and that
		// follow-up still owes the full inter-item delay.
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		select {
		case <-q.ctx.Done():
		case <-q.clock.After(q.delay):
		}
	}
}
