package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sudoplatform/sudo-operations-go/internal/ctxlog"
	"github.com/sudoplatform/sudo-operations-go/operations"
)

const defaultWorkerCount = 10

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the size of the worker pool. The default is 10.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// Queue runs operations concurrently while respecting their dependency
// graphs and readiness signals. Operations are admitted with Add, before or
// during Run; Run drives every admitted operation to Finished.
type Queue struct {
	workers int

	mu       sync.Mutex
	admitted map[string]*operations.Operation
	order    []*operations.Operation
	running  bool

	// wg counts admitted operations that have not finished yet.
	wg sync.WaitGroup
	// wake nudges the dispatcher after any admission or state change.
	wake chan struct{}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		workers:  defaultWorkerCount,
		admitted: make(map[string]*operations.Operation),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add admits an operation. It registers the queue as an observer (so
// produced operations are admitted too), admits every condition-contributed
// dependency first, and calls WillEnqueue. Admitting the same operation
// twice is a no-op.
//
// Add may be called while Run is in flight (conditions and bodies do this
// through Operation.Produce) as long as the admitting operation has not
// itself finished.
func (q *Queue) Add(op *operations.Operation) {
	q.mu.Lock()
	if _, ok := q.admitted[op.ID()]; ok {
		q.mu.Unlock()
		return
	}
	q.admitted[op.ID()] = op
	q.order = append(q.order, op)
	q.mu.Unlock()
	q.wg.Add(1)

	// Condition-contributed dependencies are wired before the operation is
	// enqueued so its dependency set is complete when it leaves Pending.
	for _, cond := range op.Conditions() {
		if dep := cond.Dependency(op); dep != nil && dep != op {
			op.AddDependency(dep)
			q.Add(dep)
		}
	}

	op.AddObserver(&queueObserver{q: q})
	op.ObserveState(func(_ *operations.Operation, _, to operations.State) {
		if to == operations.StateFinished {
			q.wg.Done()
		}
		q.kick()
	})
	op.WillEnqueue()
	q.kick()
}

// kick nudges the dispatcher without blocking; a pending nudge is enough.
func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run executes all admitted operations to completion and returns an error
// naming the operations that failed, wrapping the first root cause. It
// respects cancellation of the provided context cooperatively: in-flight
// operations are cancelled, then still drained to Finished.
//
// Run may be called once per queue.
func (q *Queue) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return errors.New("queue: Run called more than once")
	}
	q.running = true
	q.mu.Unlock()

	ready := make(chan *operations.Operation)

	logger.Debug("Starting worker pool.", "workers", q.workers)
	var group errgroup.Group
	for i := 0; i < q.workers; i++ {
		workerID := i
		group.Go(func() error {
			for op := range ready {
				logger.Debug("Worker picked up operation.", "workerID", workerID, "operation", op.Name())
				op.Start()
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	dispatched := make(map[string]bool)
	ctxDone := ctx.Done()
loop:
	for {
		// Scan admitted operations for readiness. Probing a pending
		// operation whose dependencies are satisfied starts its condition
		// evaluation, so the scan itself advances the pipeline.
		q.mu.Lock()
		snapshot := slices.Clone(q.order)
		q.mu.Unlock()
		for _, op := range snapshot {
			if dispatched[op.ID()] || op.IsFinished() {
				continue
			}
			if op.IsReady() {
				dispatched[op.ID()] = true
				select {
				case ready <- op:
				case <-done:
					break loop
				}
			}
		}

		select {
		case <-q.wake:
		case <-done:
			break loop
		case <-ctxDone:
			logger.Warn("Context canceled, cancelling in-flight operations.")
			q.cancelAll(ctx.Err())
			ctxDone = nil
		}
	}
	close(ready)
	_ = group.Wait()
	logger.Debug("All operations completed.")

	return q.failure(logger)
}

// cancelAll cooperatively cancels every unfinished admitted operation.
func (q *Queue) cancelAll(cause error) {
	q.mu.Lock()
	snapshot := slices.Clone(q.order)
	q.mu.Unlock()
	for _, op := range snapshot {
		if !op.IsFinished() {
			op.CancelWithError(cause)
		}
	}
}

// failure inspects every admitted operation and builds the aggregate run
// error. Errors that are symptoms rather than causes (an upstream dependency
// failing, or context cancellation) do not make an operation a root cause on
// their own.
func (q *Queue) failure(logger *slog.Logger) error {
	q.mu.Lock()
	snapshot := slices.Clone(q.order)
	q.mu.Unlock()

	var failed []string
	var rootCause error
	for _, op := range snapshot {
		errs := op.Errors()
		if len(errs) == 0 {
			continue
		}
		logger.Error("Operation failed.", "operation", op.Name(), "error", errors.Join(errs...))
		for _, err := range errs {
			if errors.Is(err, operations.ErrCustomConditionFailed) || errors.Is(err, context.Canceled) {
				continue
			}
			failed = append(failed, op.Name())
			if rootCause == nil {
				rootCause = err
			}
			break
		}
	}

	if rootCause != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	return nil
}

// queueObserver re-admits operations produced by running operations.
type queueObserver struct {
	q *Queue
}

func (o *queueObserver) OperationDidStart(*operations.Operation) {}

func (o *queueObserver) OperationDidProduce(_, produced *operations.Operation) {
	o.q.Add(produced)
}

func (o *queueObserver) OperationDidFinish(*operations.Operation, []error) {}
