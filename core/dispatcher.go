package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

// Work is a unit executed on the host thread.
type Work func() schema.CommandResult

// DispatchObserver receives dispatcher telemetry.
type DispatchObserver interface {
	QueueDepth(depth int)
	WorkDone(elapsed time.Duration)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used for dispatch diagnostics.
func WithDispatcherLogger(logger pslog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.log = logger
		}
	}
}

// WithDispatchObserver attaches a telemetry observer.
func WithDispatchObserver(observer DispatchObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

type pendingWork struct {
	work   Work
	future *Future
}

// Dispatcher moves work from any goroutine onto the host thread.
// The host drains the queue with Tick or Run; items execute in enqueue
// order, one at a time.
type Dispatcher struct {
	mu       sync.Mutex
	queue    []pendingWork
	stopped  bool
	wake     chan struct{}
	stopCh   chan struct{}
	log      pslog.Logger
	observer DispatchObserver

	scheduled atomic.Uint64
	executed  atomic.Uint64
}

// NewDispatcher constructs an idle dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		log:    pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Schedule enqueues work for the host thread and returns its future.
// It never blocks on host work. After Stop the returned future is already
// cancelled.
func (d *Dispatcher) Schedule(work Work) *Future {
	if work == nil {
		return Resolved(schema.Fail("no work to schedule"))
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.log.Debug("dispatch rejected", "reason", "stopped")
		return cancelledFuture()
	}
	future := newFuture()
	d.queue = append(d.queue, pendingWork{work: work, future: future})
	depth := len(d.queue)
	d.mu.Unlock()

	d.scheduled.Add(1)
	d.observeDepth(depth)
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return future
}

// Tick runs every item queued when the tick began, in order, on the calling
// goroutine. It must only be called from the host thread. Work scheduled
// during the tick runs on the next one. Tick returns the number of items run.
func (d *Dispatcher) Tick() int {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()
	if len(batch) == 0 {
		return 0
	}
	d.observeDepth(0)

	ran := 0
	for i, item := range batch {
		if d.Stopped() {
			for _, rest := range batch[i:] {
				rest.future.cancel()
			}
			d.log.Debug("dispatch cancelled", "pending", len(batch)-i)
			break
		}
		start := time.Now()
		result := d.execute(item.work)
		item.future.resolve(result)
		d.executed.Add(1)
		ran++
		if d.observer != nil {
			d.observer.WorkDone(time.Since(start))
		}
	}
	return ran
}

func (d *Dispatcher) execute(work Work) (result schema.CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panic", "panic", fmt.Sprint(r))
			result = schema.Failf("%v", r)
		}
	}()
	return work()
}

// Run is a host loop: it locks the calling goroutine to its OS thread and
// ticks whenever work arrives or interval elapses. It returns nil after Stop
// and ctx.Err() when ctx ends. A non-positive interval ticks on wake only.
// The dispatcher is stopped when Run returns, so pending and later work is
// cancelled instead of waiting for a host loop that no longer exists.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	return d.RunFrames(ctx, interval, nil)
}

// RunFrames is Run with a per-frame callback executed on the host thread
// after each interval tick.
func (d *Dispatcher) RunFrames(ctx context.Context, interval time.Duration, frame func()) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var ticks <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	d.log.Debug("host loop start", "interval", interval)
	defer d.log.Debug("host loop stop")
	defer d.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return nil
		case <-d.wake:
			d.Tick()
		case <-ticks:
			d.Tick()
			if frame != nil {
				frame()
			}
		}
	}
}

// Stop cancels all pending work and rejects further scheduling.
// It is idempotent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	pending := d.queue
	d.queue = nil
	close(d.stopCh)
	d.mu.Unlock()

	for _, item := range pending {
		item.future.cancel()
	}
	d.observeDepth(0)
	d.log.Info("dispatcher stopped", "cancelled", len(pending))
}

// Stopped reports whether Stop has been called.
func (d *Dispatcher) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Pending returns the number of queued items.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Scheduled returns how many items have been accepted by Schedule.
func (d *Dispatcher) Scheduled() uint64 {
	return d.scheduled.Load()
}

// Executed returns how many items have run on the host thread.
func (d *Dispatcher) Executed() uint64 {
	return d.executed.Load()
}

func (d *Dispatcher) observeDepth(depth int) {
	if d.observer != nil {
		d.observer.QueueDepth(depth)
	}
}
