package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/taskpilot/internal/types"
)

// Queue serializes runs per conversation and bounds how many conversations
// are processed at once. Every handle has a FIFO lane drained by its own
// goroutine; a weighted semaphore caps the processors running across lanes.
type Queue struct {
	lanes     map[types.ConversationHandle]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	laneSize  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.ConversationHandle]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		laneSize:  100,
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for handle, lane := range q.lanes {
		close(lane)
		delete(q.lanes, handle)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to its handle's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full
// or the queue has not been started.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return fmt.Errorf("queue not started")
	}
	if q.ctx.Err() != nil {
		return fmt.Errorf("queue stopped")
	}

	lane, exists := q.lanes[run.Handle]
	if !exists {
		lane = make(chan *Run, q.laneSize)
		q.lanes[run.Handle] = lane
		q.wg.Add(1)
		go q.processLane(run.Handle, lane)
	}

	select {
	case lane <- run:
		return nil
	default:
		return fmt.Errorf("queue full for conversation %s", run.Handle)
	}
}

// processLane drains a single lane, acquiring a semaphore slot before
// running the processor synchronously. Runs within a lane keep FIFO order
// while the semaphore limits cross-lane parallelism. Once the queue's
// context ends, every run left in the lane is failed.
func (q *Queue) processLane(handle types.ConversationHandle, lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			if q.ctx.Err() != nil {
				q.abandon(run)
				q.drain(lane)
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				q.abandon(run)
				q.drain(lane)
				return
			}
			q.execute(run)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			q.drain(lane)
			return
		}
	}
}

// drain fails the runs already buffered in lane without waiting for more.
func (q *Queue) drain(lane chan *Run) {
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			q.abandon(run)
		default:
			return
		}
	}
}

func (q *Queue) abandon(run *Run) {
	run.end(fmt.Errorf("queue stopped: %w", q.ctx.Err()))
	slog.Warn("run dropped", "run_id", string(run.ID), "handle", string(run.Handle))
	if run.OnComplete != nil {
		run.OnComplete(FailureReply)
	}
}

func (q *Queue) execute(run *Run) {
	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()
	if processor == nil {
		return
	}

	q.active.Add(1)
	defer q.active.Add(-1)

	run.begin(q.ctx)
	err := processor(run)
	run.end(err)
	if err != nil {
		slog.Error("run failed", "run_id", string(run.ID), "handle", string(run.Handle), "error", err)
		if run.OnComplete != nil {
			run.OnComplete(FailureReply)
		}
		return
	}
	slog.Debug("run complete", "run_id", string(run.ID), "handle", string(run.Handle), "duration", run.Duration())
}

// Active returns the number of runs currently being processed.
func (q *Queue) Active() int64 {
	return q.active.Load()
}

// WaitIdle polls until no processor is running. It reports false if timeout
// passes first.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = fn
}
