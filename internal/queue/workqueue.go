// Package queue implements the cooperative, sensor-gated,
// heartbeat-monitored work queue: a bounded FIFO plus a fixed pool of
// worker goroutines that drain it, coordinating sensor gating, deadline
// enforcement, heartbeat monitoring, and completion reporting.
//
// The concurrency model maps the original single-threaded cooperative
// scheduler onto goroutines: one goroutine per worker, ad-hoc sibling
// goroutines for a job's deadline/heartbeat monitor, and a Handle (a
// single-assignment channel cell) standing in for the original's future.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds WorkQueue construction parameters (§6).
type Config struct {
	// MaxQueueSize bounds the FIFO; it must be positive.
	MaxQueueSize int
	// Concurrency is the fixed worker pool size; it must be positive.
	Concurrency int
	// SensorPolicy gates admission of each popped request. Nil disables
	// sensor gating entirely.
	SensorPolicy *SensorPolicy
	// Metrics is the counter bundle to use. A fresh one is created if nil.
	Metrics *Metrics
	// Logger receives structured lifecycle events. A no-op logger is used
	// if nil.
	Logger *zap.SugaredLogger
}

// WorkQueue is a bounded FIFO of job requests drained by a fixed pool of
// worker goroutines. Its lifecycle is: constructed idle -> Start spawns
// workers -> Stop drains and terminates workers -> idle again. Start may be
// called again after Stop.
type WorkQueue struct {
	maxQueueSize int
	concurrency  int
	sensorPolicy *SensorPolicy
	metrics      *Metrics
	log          *zap.SugaredLogger

	mu       sync.Mutex
	requests chan *jobRequest
	started  bool
	workerWg sync.WaitGroup
	inflight sync.WaitGroup
}

// New constructs an idle WorkQueue. Panics if MaxQueueSize or Concurrency
// are not positive — a programmer error, not a runtime failure mode.
func New(cfg Config) *WorkQueue {
	if cfg.MaxQueueSize <= 0 {
		panic("queue: MaxQueueSize must be positive")
	}
	if cfg.Concurrency <= 0 {
		panic("queue: Concurrency must be positive")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WorkQueue{
		maxQueueSize: cfg.MaxQueueSize,
		concurrency:  cfg.Concurrency,
		sensorPolicy: cfg.SensorPolicy,
		metrics:      metrics,
		log:          logger,
	}
}

// Metrics returns the queue's counter bundle.
func (q *WorkQueue) Metrics() *Metrics { return q.metrics }

// Start is idempotent: it spawns Concurrency worker goroutines the first
// time it is called, and is a no-op if workers are already running.
func (q *WorkQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.requests = make(chan *jobRequest, q.maxQueueSize)
	q.started = true
	for i := 0; i < q.concurrency; i++ {
		q.workerWg.Add(1)
		go q.workerLoop(i)
	}
	q.log.Infow("work queue started", "concurrency", q.concurrency, "max_queue_size", q.maxQueueSize)
}

// Stop gracefully shuts the queue down: it injects one sentinel per worker
// so each drains any requests ahead of it before exiting, then awaits
// worker termination. It is idempotent — calling Stop when already stopped
// is a no-op.
func (q *WorkQueue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	requests := q.requests
	concurrency := q.concurrency
	q.mu.Unlock()

	for i := 0; i < concurrency; i++ {
		requests <- nil // sentinel
	}
	q.workerWg.Wait()
	q.log.Info("work queue stopped")
}

// Join returns once the queue is empty and every admitted request has been
// processed to completion (value or failure).
func (q *WorkQueue) Join() {
	q.inflight.Wait()
}

// Enqueue submits a job and returns a handle that will eventually resolve
// with the job's value or a failure. It never blocks on capacity: if the
// bounded queue is full the handle is resolved immediately with
// OutcomeQueueFull and QueueRejections is incremented. Pass zero for
// durationLimit/heartbeatInterval to leave the corresponding feature
// unset.
func (q *WorkQueue) Enqueue(fn JobFunc, durationLimit, heartbeatInterval time.Duration) *Handle {
	handle := newHandle()
	req := &jobRequest{
		fn:                fn,
		durationLimit:     durationLimit,
		heartbeatInterval: heartbeatInterval,
		handle:            handle,
	}

	q.mu.Lock()
	requests := q.requests
	started := q.started
	q.mu.Unlock()

	if !started {
		handle.resolve(Outcome{Kind: OutcomeQueueFull, Err: ErrQueueFull})
		q.metrics.incQueueRejections()
		return handle
	}

	q.inflight.Add(1)
	select {
	case requests <- req:
		// admitted
	default:
		q.inflight.Done()
		q.metrics.incQueueRejections()
		handle.resolve(Outcome{Kind: OutcomeQueueFull, Err: ErrQueueFull})
	}
	return handle
}

// workerLoop is the per-worker drain loop described in §4.1.
func (q *WorkQueue) workerLoop(id int) {
	defer q.workerWg.Done()
	for req := range q.requests {
		if req == nil { // sentinel
			return
		}
		q.process(id, req)
	}
}

// process runs exactly one admitted request through sensor gating,
// execution with deadline/heartbeat supervision, and outcome
// classification, updating metrics exactly once and resolving the handle
// exactly once.
func (q *WorkQueue) process(workerID int, req *jobRequest) {
	defer q.inflight.Done()

	rootCtx := context.Background()

	if q.sensorPolicy != nil {
		if err := q.sensorPolicy.Enforce(rootCtx); err != nil {
			q.metrics.incFailed()
			req.handle.resolve(Outcome{Kind: OutcomeSensorAbort, Err: err})
			return
		}
	}

	q.metrics.incStarted()

	var jobCtx context.Context
	var cancel context.CancelFunc
	if req.durationLimit > 0 {
		jobCtx, cancel = context.WithTimeout(rootCtx, req.durationLimit)
	} else {
		jobCtx, cancel = context.WithCancel(rootCtx)
	}
	defer cancel()

	var heartbeat *Heartbeat
	if req.heartbeatInterval > 0 {
		heartbeat = NewHeartbeat(req.heartbeatInterval)
	}
	jc := &JobContext{ctx: jobCtx, heartbeat: heartbeat}

	jobDone := make(chan jobSignal, 1)
	go func() {
		v, err := req.fn(jc)
		jobDone <- jobSignal{value: v, err: err}
	}()

	var monitorDone chan error
	if heartbeat != nil {
		monitorDone = make(chan error, 1)
		go func() {
			monitorDone <- heartbeat.Monitor(jobCtx)
		}()
	}

	out := q.awaitOutcome(jobCtx, cancel, jobDone, monitorDone)
	q.classify(out.kind)
	if out.err != nil {
		q.log.Debugw("job settled", "worker", workerID, "outcome", out.kind.String(), "err", out.err)
	} else {
		q.log.Debugw("job settled", "worker", workerID, "outcome", out.kind.String())
	}
	req.handle.resolve(Outcome{Kind: out.kind, Value: out.value, Err: out.err})
}

type jobSignal struct {
	value any
	err   error
}

type rawOutcome struct {
	kind  OutcomeKind
	value any
	err   error
}

// awaitOutcome implements the "wait for the first sibling to complete" rule
// of §4.1: the job body, the deadline (folded into jobCtx), and the
// heartbeat monitor race; whichever resolves first wins, the loser is
// cancelled, and the worker blocks until the job body has actually
// terminated before returning — never leaving a job goroutine running past
// the point its handle resolves.
func (q *WorkQueue) awaitOutcome(
	jobCtx context.Context,
	cancel context.CancelFunc,
	jobDone <-chan jobSignal,
	monitorDone <-chan error,
) rawOutcome {
	select {
	case r := <-jobDone:
		cancel()
		if r.err != nil {
			return rawOutcome{kind: OutcomeFailure, err: r.err}
		}
		return rawOutcome{kind: OutcomeValue, value: r.value}

	case err := <-monitorDone:
		if err == nil {
			// Monitor returns ErrHeartbeatMissed or ctx.Err(), never nil; a
			// nil result is handled by waiting on the job itself to see how
			// it finished.
			r := <-jobDone
			if r.err != nil {
				return rawOutcome{kind: OutcomeFailure, err: r.err}
			}
			return rawOutcome{kind: OutcomeValue, value: r.value}
		}
		cancel()
		r := <-jobDone // await natural termination before resolving (invariant 3)
		if errors.Is(err, ErrHeartbeatMissed) {
			return rawOutcome{kind: OutcomeHeartbeatMissed, err: err}
		}
		// Monitor returned ctx.Err(), not ErrHeartbeatMissed — the
		// duration-limit deadline fired and cancelled jobCtx before the
		// monitor noticed a true miss. Classify by jobCtx's own error
		// rather than mislabeling a timeout (or other cancellation) as a
		// heartbeat miss.
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			return rawOutcome{kind: OutcomeTimeout, err: ErrTimeout}
		}
		if r.err != nil {
			return rawOutcome{kind: OutcomeFailure, err: r.err}
		}
		return rawOutcome{kind: OutcomeValue, value: r.value}

	case <-jobCtx.Done():
		if jobCtx.Err() == context.DeadlineExceeded {
			cancel()
			<-jobDone // await natural termination before resolving
			return rawOutcome{kind: OutcomeTimeout, err: ErrTimeout}
		}
		// Cancelled for some other reason before either sibling reported;
		// wait for the job to actually settle.
		r := <-jobDone
		if r.err != nil {
			return rawOutcome{kind: OutcomeFailure, err: r.err}
		}
		return rawOutcome{kind: OutcomeValue, value: r.value}
	}
}

func (q *WorkQueue) classify(kind OutcomeKind) {
	switch kind {
	case OutcomeValue:
		q.metrics.incCompleted()
	case OutcomeTimeout:
		q.metrics.incTimedOut()
	case OutcomeHeartbeatMissed:
		q.metrics.incHeartbeatMissed()
	case OutcomeFailure:
		q.metrics.incFailed()
	}
}
