package operations

// Observer is a lifecycle listener. Observers are attached before an
// operation starts executing and are notified in attachment order. An
// observer must not fail; an error escaping an observer is a defect in that
// observer.
type Observer interface {
	// OperationDidStart is called after the operation transitions to
	// Executing, before the body runs. It is not called when the body is
	// skipped (cancellation or accumulated errors).
	OperationDidStart(op *Operation)

	// OperationDidProduce is called when a condition or body spawns a new
	// operation that the scheduler should also run.
	OperationDidProduce(op, produced *Operation)

	// OperationDidFinish is called exactly once with the final combined
	// error list, before the transition to Finished becomes visible.
	OperationDidFinish(op *Operation, errs []error)
}
