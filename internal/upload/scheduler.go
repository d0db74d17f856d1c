package upload

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/solatis/beacon/internal/metrics"
	"github.com/solatis/beacon/internal/types"
)

// State is the scheduler's drain-cycle state.
type State int

const (
	// StateIdle means no drain cycle is active and nothing is waiting.
	StateIdle State = iota
	// StateDraining means a drain cycle is delivering pings right now.
	StateDraining
	// StateWaitingBackoff means the last cycle hit a transient failure
	// and further drains are deferred until the backoff elapses.
	StateWaitingBackoff
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateWaitingBackoff:
		return "waiting_backoff"
	default:
		return "unknown"
	}
}

// SchedulerConfig carries the delivery parameters the scheduler needs.
type SchedulerConfig struct {
	// Endpoint is the collector base URL.
	Endpoint string
	// DebugTag, when non-empty, adds the X-Debug-ID header and routes
	// uploads through the debug endpoint path. Payload bytes and queue
	// semantics are unaffected.
	DebugTag string
	// BackoffSeed and BackoffCap parameterize retry waits.
	BackoffSeed time.Duration
	BackoffCap  time.Duration
}

// Scheduler drains the upload queue. One drain cycle runs at a time;
// the scheduler itself is driven from outside (host timers, explicit
// flushes, app-foreground events) via DrainQueue and never spawns its
// own timers.
type Scheduler struct {
	queue     *Queue
	transport Transport
	store     *metrics.Store
	cfg       SchedulerConfig
	backoff   *Backoff
	log       *logrus.Entry

	// mu guards the queue's consumer side: state, waitUntil, and the
	// right to pop entries. Delivery order stays deterministic because
	// only the lock holder touches the head.
	mu        sync.Mutex
	state     State
	waitUntil time.Time
	enabled   bool
}

// NewScheduler wires a scheduler over a queue and a transport.
func NewScheduler(queue *Queue, transport Transport, store *metrics.Store, cfg SchedulerConfig, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		queue:     queue,
		transport: transport,
		store:     store,
		cfg:       cfg,
		backoff:   NewBackoff(cfg.BackoffSeed, cfg.BackoffCap),
		log:       log.WithField("component", "scheduler"),
		enabled:   true,
	}
}

// SetEnabled switches uploading on or off. Disabling does not
// interrupt an attempt already on the wire; the active cycle stops
// after it (see DrainQueue's cancellation contract).
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// State reports the current drain-cycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateWaitingBackoff && !time.Now().Before(s.waitUntil) {
		return StateIdle
	}
	return s.state
}

// DrainQueue runs one drain cycle: deliver pending uploads oldest
// first until the queue empties, a transient failure starts a backoff
// wait, or ctx is cancelled. Cancellation is honored between attempts,
// never mid-attempt, so a queue entry is always either untouched or
// terminally resolved.
//
// Returns ErrDrainInProgress when a cycle is already active and
// ErrUploadsDisabled when uploading is switched off; both are
// informational, not failures of the queue itself.
func (s *Scheduler) DrainQueue(ctx context.Context) error {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return types.ErrUploadsDisabled
	}
	if s.state == StateDraining {
		s.mu.Unlock()
		return types.ErrDrainInProgress
	}
	if s.state == StateWaitingBackoff && time.Now().Before(s.waitUntil) {
		// Still backing off; the next external trigger after waitUntil
		// will drain.
		s.mu.Unlock()
		return nil
	}
	s.state = StateDraining
	s.mu.Unlock()

	next := StateIdle
	defer func() {
		s.mu.Lock()
		s.state = next
		s.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		enabled := s.enabled
		s.mu.Unlock()
		if !enabled {
			return types.ErrUploadsDisabled
		}

		item, err := s.queue.PeekNext()
		if err == types.ErrQueueEmpty {
			return nil
		}
		if err != nil {
			return err
		}

		switch s.attempt(ctx, item) {
		case outcomeSuccess:
			s.backoff.Reset()
			if err := s.queue.Remove(item.DocumentID); err != nil {
				return err
			}
		case outcomePermanent:
			s.log.WithField("document_id", item.DocumentID).Warn("collector rejected ping, dropping")
			s.store.RecordStandaloneError("uploader", types.ErrorDeliveryPermanent)
			if err := s.queue.Remove(item.DocumentID); err != nil {
				return err
			}
		case outcomeTransient:
			wait := s.backoff.Next()
			s.mu.Lock()
			s.waitUntil = time.Now().Add(wait)
			s.mu.Unlock()
			next = StateWaitingBackoff
			s.log.WithFields(logrus.Fields{
				"document_id": item.DocumentID,
				"retry_in":    wait,
			}).Info("transient upload failure, backing off")
			return nil
		}
	}
}

// outcome classifies one delivery attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomePermanent
	outcomeTransient
)

// attempt delivers one queued upload and classifies the result: any
// 2xx is success, any 4xx means the payload itself is defective and
// retrying cannot help, everything else (5xx, network error, timeout)
// is worth retrying.
func (s *Scheduler) attempt(ctx context.Context, item *QueuedUpload) outcome {
	headers := make(map[string]string, len(item.Headers)+2)
	for k, v := range item.Headers {
		headers[k] = v
	}
	headers["Date"] = time.Now().UTC().Format(time.RFC1123)
	if s.cfg.DebugTag != "" {
		headers["X-Debug-ID"] = s.cfg.DebugTag
	}

	status, err := s.transport.Deliver(ctx, s.uploadURL(item), headers, item.Body)
	if err != nil {
		s.log.WithError(err).WithField("document_id", item.DocumentID).Debug("delivery failed")
		return outcomeTransient
	}

	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status >= 400 && status < 500:
		return outcomePermanent
	default:
		return outcomeTransient
	}
}

// uploadURL builds the destination for one upload. Debug mode inserts
// a /debug prefix so tagged pings land on the inspection endpoint; the
// queued record itself is never rewritten.
func (s *Scheduler) uploadURL(item *QueuedUpload) string {
	if s.cfg.DebugTag != "" {
		return s.cfg.Endpoint + "/debug" + item.Path
	}
	return s.cfg.Endpoint + item.Path
}
