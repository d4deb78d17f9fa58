package operations

// Delegate supplies the operation body.
type Delegate interface {
	// Execute performs the operation's work. Implementations must arrange
	// for op.Finish (or op.FinishWithError) to be called on every exit path,
	// directly or from a callback; otherwise the operation never leaves
	// Executing and the scheduler waits on it forever. Long-running bodies
	// should check op.Cancelled at convenient points.
	Execute(op *Operation)
}

// CustomConditioner lets a delegate replace the internal condition check
// that runs right before the body. The default, applied when the delegate
// does not implement this interface, refuses to run when any dependency
// recorded errors.
type CustomConditioner interface {
	CheckCustomConditions(op *Operation) bool
}

// FinishHandler lets a delegate observe its own completion. It is called
// exactly once with the combined error list, before the attached observers.
type FinishHandler interface {
	OperationFinished(op *Operation, errs []error)
}

// Func adapts a plain function into a Delegate.
type Func func(op *Operation)

func (f Func) Execute(op *Operation) {
	f(op)
}
