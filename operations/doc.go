// Package operations provides a composable unit of work for asynchronous,
// dependency-ordered execution. An Operation carries its own lifecycle state
// machine, a set of asynchronously evaluated preconditions, a list of
// lifecycle observers, and an accumulated error list. It exposes the
// readiness, executing, and finished signals a dependency-respecting
// scheduler needs; package queue ships such a scheduler.
//
// The lifecycle is:
//
//	Initialized → Pending → EvaluatingConditions → Ready → Executing → Finished
//
// with a cancellation fast-path to Finished from Pending and Ready. Any other
// transition is an orchestration bug and panics.
package operations
