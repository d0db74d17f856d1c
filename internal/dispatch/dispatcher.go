// Package dispatch serializes all telemetry mutation onto a single
// execution context.
//
// Recording calls arrive on arbitrary host threads. Instead of guarding
// every engine with locks, all work funnels through one task queue
// consumed by one worker goroutine: a single-writer discipline. Launch
// is fire-and-forget and never blocks the host; when the queue is full
// the task is dropped and the drop is logged, because losing one
// telemetry write is always preferable to stalling the application.
//
// Testing mode runs every task inline on the caller's goroutine, which
// is the only supported way to get read-after-write determinism.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultQueueSize bounds pending tasks. Deep enough to absorb bursts
// of recording; shallow enough that a wedged store cannot hoard memory.
const DefaultQueueSize = 100

// Dispatcher is the single-consumer task queue.
type Dispatcher struct {
	tasks chan func()
	log   *logrus.Entry

	// sync runs tasks inline for test determinism.
	sync bool

	// mu guards shutdown and the channel close: senders hold the read
	// side, so concurrent sends never exclude each other and never race
	// the close.
	mu       sync.RWMutex
	shutdown bool
	workerWG sync.WaitGroup
}

// New creates a dispatcher. In testing mode no worker is started and
// every task runs synchronously on the calling goroutine.
func New(queueSize int, testingMode bool, log *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		tasks: make(chan func(), queueSize),
		log:   log.WithField("component", "dispatch"),
		sync:  testingMode,
	}
	if !testingMode {
		d.workerWG.Add(1)
		go d.worker()
	}
	return d
}

// worker consumes tasks until Shutdown closes the queue.
func (d *Dispatcher) worker() {
	defer d.workerWG.Done()
	for task := range d.tasks {
		task()
	}
}

// Launch submits a task and returns immediately. After Shutdown, and
// when the queue is full, the task is dropped with a log line; the
// host never blocks and never sees an error.
func (d *Dispatcher) Launch(task func()) {
	if d.sync {
		task()
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shutdown {
		d.log.Debug("dispatcher stopped, dropping task")
		return
	}
	select {
	case d.tasks <- task:
	default:
		d.log.Warn("task queue full, dropping telemetry task")
	}
}

// BlockOnQueue waits until every task submitted before the call has
// run. Test-only accessors use this to observe settled state; in
// testing mode it is a no-op because nothing is ever pending.
func (d *Dispatcher) BlockOnQueue() {
	if d.sync {
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// A marker task: once it runs, everything ahead of it has run. The
	// send may block on a saturated queue; the read lock keeps Launch
	// callers flowing (and dropping) concurrently while it waits.
	d.mu.RLock()
	if d.shutdown {
		d.mu.RUnlock()
		return
	}
	d.tasks <- func() { wg.Done() }
	d.mu.RUnlock()

	wg.Wait()
}

// Shutdown stops accepting tasks, runs what is already queued, and
// waits for the worker to exit. Idempotent.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return
	}
	d.shutdown = true
	d.mu.Unlock()
	// Past this point no sender can be inside a send: they observe
	// shutdown under the read lock before touching the channel.

	if d.sync {
		return
	}
	close(d.tasks)
	d.workerWG.Wait()
}
