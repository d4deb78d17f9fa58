package operations

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Operation is the core state machine. It must always be handled as a
// pointer; see New.
//
// The state field is the single piece of shared mutable state and every read
// or write of it goes through mu. The condition, observer, and dependency
// lists are only mutable before their gate states (see AddCondition,
// AddObserver, AddDependency), which is enforced with panics because a late
// mutation is an orchestration bug, not a runtime condition.
type Operation struct {
	id       string
	name     string
	delegate Delegate
	executor Executor
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	conditions []Condition
	observers  []Observer
	deps       []*Operation
	errs       []error
	stateSubs  []StateFunc
	evaluating bool
	finishing  bool
	startedAt  time.Time
	finishedAt time.Time

	// cancelled is independent of state: it can be set at any time and is
	// consulted by the readiness and execution guards.
	cancelled atomic.Bool
}

// StateFunc receives state-change notifications; see ObserveState.
type StateFunc func(op *Operation, from, to State)

// Option configures an Operation at construction.
type Option func(*Operation)

// WithName sets a human-readable name used in logs and errors. The default
// is the operation's ID.
func WithName(name string) Option {
	return func(op *Operation) { op.name = name }
}

// WithExecutor sets the Executor used for condition evaluation. The default
// runs each evaluation on its own goroutine.
func WithExecutor(exec Executor) Option {
	return func(op *Operation) { op.executor = exec }
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(op *Operation) { op.logger = logger }
}

// New creates an operation in StateInitialized with a unique, immutable ID.
func New(delegate Delegate, opts ...Option) *Operation {
	if delegate == nil {
		panic("operations: New called with a nil delegate")
	}
	op := &Operation{
		id:       uuid.NewString(),
		delegate: delegate,
		executor: GoExecutor{},
		logger:   slog.Default(),
		state:    StateInitialized,
	}
	for _, opt := range opts {
		opt(op)
	}
	if op.name == "" {
		op.name = op.id
	}
	return op
}

// NewFunc creates an operation whose body is fn. The function must call
// op.Finish on every exit path.
func NewFunc(fn func(op *Operation), opts ...Option) *Operation {
	return New(Func(fn), opts...)
}

// ID returns the unique identifier assigned at construction.
func (op *Operation) ID() string { return op.id }

// Name returns the human-readable name.
func (op *Operation) Name() string { return op.name }

// State returns the current lifecycle state.
func (op *Operation) State() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Cancelled reports whether the operation has been cancelled. Bodies should
// poll it at convenient points; cancellation never interrupts running code.
func (op *Operation) Cancelled() bool {
	return op.cancelled.Load()
}

// Errors returns a copy of the accumulated error list.
func (op *Operation) Errors() []error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return slices.Clone(op.errs)
}

// Dependencies returns a copy of the dependency set.
func (op *Operation) Dependencies() []*Operation {
	op.mu.Lock()
	defer op.mu.Unlock()
	return slices.Clone(op.deps)
}

// Conditions returns a copy of the declared condition list.
func (op *Operation) Conditions() []Condition {
	op.mu.Lock()
	defer op.mu.Unlock()
	return slices.Clone(op.conditions)
}

// StartedAt returns when the body was admitted, or the zero time if the body
// never ran.
func (op *Operation) StartedAt() time.Time {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.startedAt
}

// FinishedAt returns when the operation finished, or the zero time if it has
// not.
func (op *Operation) FinishedAt() time.Time {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.finishedAt
}

// AddCondition declares a precondition. It panics once the operation has
// begun evaluating conditions: the operation's shape must be fully declared
// before evaluation starts.
func (op *Operation) AddCondition(c Condition) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state >= StateEvaluatingConditions {
		panic(fmt.Sprintf("operations: cannot add condition to operation %q in state %v", op.name, op.state))
	}
	op.conditions = append(op.conditions, c)
}

// AddObserver attaches a lifecycle observer. It panics once the operation is
// executing.
func (op *Operation) AddObserver(o Observer) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state >= StateExecuting {
		panic(fmt.Sprintf("operations: cannot add observer to operation %q in state %v", op.name, op.state))
	}
	op.observers = append(op.observers, o)
}

// AddDependency declares that dep must finish before this operation may
// leave Pending. The operation holds the reference for readiness inspection
// only; it does not own dep's lifecycle. It panics once the operation is
// executing, or on a self-dependency.
func (op *Operation) AddDependency(dep *Operation) {
	if dep == op {
		panic(fmt.Sprintf("operations: operation %q cannot depend on itself", op.name))
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state >= StateExecuting {
		panic(fmt.Sprintf("operations: cannot add dependency to operation %q in state %v", op.name, op.state))
	}
	op.deps = append(op.deps, dep)
}

// ObserveState registers fn to be called after every subsequent state
// transition. This is the explicit subscription interface the scheduler uses
// for wakeups instead of polling on a timer.
func (op *Operation) ObserveState(fn StateFunc) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.stateSubs = append(op.stateSubs, fn)
}

// transitionLocked advances the state while holding mu and returns the
// subscription callbacks to fire once mu is released. It panics on any edge
// the state machine does not allow, because a bad transition indicates a
// concurrency bug in the orchestration layer.
func (op *Operation) transitionLocked(to State) []func() {
	from := op.state
	if !from.canTransitionTo(to) {
		panic(fmt.Sprintf("operations: invalid transition from %v to %v for operation %q", from, to, op.name))
	}
	op.state = to
	cbs := make([]func(), 0, len(op.stateSubs))
	for _, sub := range op.stateSubs {
		sub := sub
		cbs = append(cbs, func() { sub(op, from, to) })
	}
	return cbs
}

func fire(cbs []func()) {
	for _, cb := range cbs {
		cb()
	}
}

// WillEnqueue moves the operation out of Initialized. The scheduler must
// call it exactly once, before it considers the operation for execution.
func (op *Operation) WillEnqueue() {
	op.mu.Lock()
	cbs := op.transitionLocked(StatePending)
	op.mu.Unlock()
	fire(cbs)
}

// IsReady reports whether the operation may be handed to Start.
//
// In Pending with all dependencies finished, the first call kicks off
// asynchronous condition evaluation as a side effect and reports false; the
// operation reports ready once evaluation completes. A cancelled operation
// reports ready from Initialized and Pending so it can be finished out
// immediately.
func (op *Operation) IsReady() bool {
	op.mu.Lock()
	state := op.state
	cancelled := op.cancelled.Load()
	var deps []*Operation
	if state == StatePending && !cancelled {
		deps = slices.Clone(op.deps)
	}
	op.mu.Unlock()

	switch state {
	case StateInitialized:
		return cancelled
	case StatePending:
		if cancelled {
			return true
		}
		for _, dep := range deps {
			if !dep.IsFinished() {
				return false
			}
		}
		op.evaluateConditions()
		return false
	case StateReady:
		// Dependencies were satisfied on the way in, and a cancelled
		// operation is ready regardless.
		return true
	default:
		return false
	}
}

// IsExecuting reports whether the body is currently running.
func (op *Operation) IsExecuting() bool {
	return op.State() == StateExecuting
}

// IsFinished reports whether the operation reached its terminal state,
// success or not.
func (op *Operation) IsFinished() bool {
	return op.State() == StateFinished
}

// evaluateConditions fires exactly once even under concurrent readiness
// polling. Failures do not block readiness: they are appended to the error
// list and surfaced by the execution guard.
func (op *Operation) evaluateConditions() {
	op.mu.Lock()
	if op.evaluating || op.state != StatePending {
		op.mu.Unlock()
		return
	}
	op.evaluating = true
	conds := slices.Clone(op.conditions)
	cbs := op.transitionLocked(StateEvaluatingConditions)
	op.mu.Unlock()
	fire(cbs)

	EvaluateConditions(op.executor, conds, op, func(failures []error) {
		op.mu.Lock()
		op.errs = append(op.errs, failures...)
		cbs := op.transitionLocked(StateReady)
		op.mu.Unlock()
		fire(cbs)
	})
}

// Start is the scheduler's entry point. It must be called at most once, and
// only when IsReady reports true; any other use panics. When the operation
// was cancelled or already accumulated errors (condition failures), the body
// is skipped and the operation finishes immediately with those errors.
func (op *Operation) Start() {
	op.mu.Lock()
	state := op.state
	cancelled := op.cancelled.Load()
	if state != StateReady && !(cancelled && state == StatePending) {
		op.mu.Unlock()
		panic(fmt.Sprintf("operations: Start called on operation %q in state %v", op.name, state))
	}
	if cancelled || len(op.errs) > 0 {
		op.mu.Unlock()
		op.Finish()
		return
	}
	op.startedAt = time.Now()
	op.mu.Unlock()

	if !op.checkCustomConditions() {
		op.Finish(fmt.Errorf("%w: operation %q", ErrCustomConditionFailed, op.name))
		return
	}

	op.mu.Lock()
	observers := slices.Clone(op.observers)
	cbs := op.transitionLocked(StateExecuting)
	op.mu.Unlock()
	fire(cbs)

	for _, obs := range observers {
		obs.OperationDidStart(op)
	}
	op.delegate.Execute(op)
}

// checkCustomConditions applies the delegate's policy, or the default one:
// refuse to run when any dependency recorded errors. Finer-grained selection
// belongs to CustomConditioner implementors.
func (op *Operation) checkCustomConditions() bool {
	if cc, ok := op.delegate.(CustomConditioner); ok {
		return cc.CheckCustomConditions(op)
	}
	for _, dep := range op.Dependencies() {
		if len(dep.Errors()) > 0 {
			return false
		}
	}
	return true
}

// Finish completes the operation. It is idempotent: only the first call
// merges errors, runs the delegate's finish hook, and notifies observers;
// later calls (including concurrent ones) are no-ops and contribute no
// errors. Caller-supplied errors precede previously accumulated ones in the
// combined list; nil entries are dropped.
func (op *Operation) Finish(errs ...error) {
	op.mu.Lock()
	if op.finishing || op.state == StateFinished {
		op.mu.Unlock()
		return
	}
	op.finishing = true
	combined := make([]error, 0, len(errs)+len(op.errs))
	for _, err := range errs {
		if err != nil {
			combined = append(combined, err)
		}
	}
	combined = append(combined, op.errs...)
	op.errs = combined
	op.finishedAt = time.Now()
	startedAt := op.startedAt
	finishedAt := op.finishedAt
	observers := slices.Clone(op.observers)
	op.mu.Unlock()

	if startedAt.IsZero() {
		op.logger.Debug("operation finished without executing",
			"operation", op.name, "id", op.id, "errors", len(combined))
	} else {
		op.logger.Debug("operation finished",
			"operation", op.name, "id", op.id, "elapsed", finishedAt.Sub(startedAt), "errors", len(combined))
	}

	if fh, ok := op.delegate.(FinishHandler); ok {
		fh.OperationFinished(op, combined)
	}
	for _, obs := range observers {
		obs.OperationDidFinish(op, combined)
	}

	op.mu.Lock()
	cbs := op.transitionLocked(StateFinished)
	op.mu.Unlock()
	fire(cbs)
}

// FinishWithError is shorthand for Finish(err).
func (op *Operation) FinishWithError(err error) {
	op.Finish(err)
}

// Cancel marks the operation cancelled. Cancellation is cooperative: the
// readiness and execution guards observe the flag, and an executing body
// must check Cancelled itself if it wants to abort early. Cancelling a
// finished operation is a no-op.
func (op *Operation) Cancel() {
	if op.IsFinished() {
		return
	}
	op.cancelled.Store(true)
}

// CancelWithError records err as the cancellation reason, then cancels.
func (op *Operation) CancelWithError(err error) {
	if err != nil {
		op.mu.Lock()
		if op.state != StateFinished && !op.finishing {
			op.errs = append(op.errs, err)
		}
		op.mu.Unlock()
	}
	op.Cancel()
}

// Produce hands a newly created operation to the attached observers,
// typically so the scheduler admits it alongside this one. Conditions and
// bodies use it to spawn follow-up work.
func (op *Operation) Produce(produced *Operation) {
	op.mu.Lock()
	observers := slices.Clone(op.observers)
	op.mu.Unlock()
	for _, obs := range observers {
		obs.OperationDidProduce(op, produced)
	}
}
