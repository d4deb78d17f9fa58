package operations

import (
	"sync"
	"sync/atomic"
)

// Condition is an asynchronously evaluated precondition an operation must
// satisfy before it becomes ready. Evaluation happens concurrently with the
// other conditions of the same operation; there is no ordering between them.
type Condition interface {
	// Name identifies the condition in errors and logs.
	Name() string

	// Dependency returns an operation that must run before op's conditions
	// are evaluated, or nil. The scheduler admits the returned operation and
	// registers it as a dependency of op before op leaves Pending.
	Dependency(op *Operation) *Operation

	// Evaluate reports the outcome through done, which the condition must
	// call exactly once. A nil error is success; calls may happen on any
	// goroutine.
	Evaluate(op *Operation, done func(error))
}

// EvaluateConditions runs all conditions concurrently on exec and calls done
// exactly once with the failures, wrapped in *ConditionError and ordered by
// condition position regardless of completion order. An empty condition list
// completes immediately; an empty failure list signifies full success.
//
// A condition whose callback fires more than once has its extra calls
// ignored rather than corrupting the fan-in count.
func EvaluateConditions(exec Executor, conds []Condition, op *Operation, done func([]error)) {
	if len(conds) == 0 {
		done(nil)
		return
	}

	results := make([]error, len(conds))
	var remaining atomic.Int32
	remaining.Store(int32(len(conds)))

	for i, cond := range conds {
		i, cond := i, cond
		var once sync.Once
		exec.Execute(func() {
			cond.Evaluate(op, func(err error) {
				once.Do(func() {
					results[i] = err
					if remaining.Add(-1) > 0 {
						return
					}
					var failures []error
					for j, res := range results {
						if res != nil {
							failures = append(failures, &ConditionError{
								Condition: conds[j].Name(),
								Err:       res,
							})
						}
					}
					done(failures)
				})
			})
		})
	}
}
