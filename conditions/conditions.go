// Package conditions provides stock preconditions for operations.
package conditions

import (
	"fmt"
	"sync"

	"github.com/sudoplatform/sudo-operations-go/operations"
)

// Block builds a condition from function values. Nil functions default to
// "no dependency" and "always satisfied".
type Block struct {
	// ConditionName identifies the condition in errors and logs.
	ConditionName string
	// DependencyFn contributes an operation that must run first, or nil.
	DependencyFn func(op *operations.Operation) *operations.Operation
	// EvaluateFn reports the outcome through done, exactly once.
	EvaluateFn func(op *operations.Operation, done func(error))
}

func (b *Block) Name() string {
	if b.ConditionName == "" {
		return "Block"
	}
	return b.ConditionName
}

func (b *Block) Dependency(op *operations.Operation) *operations.Operation {
	if b.DependencyFn == nil {
		return nil
	}
	return b.DependencyFn(op)
}

func (b *Block) Evaluate(op *operations.Operation, done func(error)) {
	if b.EvaluateFn == nil {
		done(nil)
		return
	}
	b.EvaluateFn(op, done)
}

// NoCancelledDependencies fails when any dependency of the operation was
// cancelled. The default custom-condition policy only reacts to dependency
// errors; this condition additionally refuses to run after a dependency was
// cancelled without recording one.
type NoCancelledDependencies struct{}

func (NoCancelledDependencies) Name() string { return "NoCancelledDependencies" }

func (NoCancelledDependencies) Dependency(*operations.Operation) *operations.Operation { return nil }

func (NoCancelledDependencies) Evaluate(op *operations.Operation, done func(error)) {
	for _, dep := range op.Dependencies() {
		if dep.Cancelled() {
			done(fmt.Errorf("dependency %q was cancelled", dep.Name()))
			return
		}
	}
	done(nil)
}

// ExclusivityController serializes operations that share a named category.
// The zero value is ready to use; a single controller is typically shared by
// everything scheduled on one queue.
type ExclusivityController struct {
	mu   sync.Mutex
	last map[string]*operations.Operation
}

// NewExclusivityController returns a controller with no registered
// operations.
func NewExclusivityController() *ExclusivityController {
	return &ExclusivityController{}
}

// MutuallyExclusive returns a condition that makes its operation run after
// the previously registered operation in the same category, serializing the
// category in registration order.
func (c *ExclusivityController) MutuallyExclusive(category string) operations.Condition {
	return &mutexCondition{ctrl: c, category: category}
}

type mutexCondition struct {
	ctrl     *ExclusivityController
	category string
}

func (m *mutexCondition) Name() string {
	return fmt.Sprintf("MutuallyExclusive[%s]", m.category)
}

func (m *mutexCondition) Dependency(op *operations.Operation) *operations.Operation {
	m.ctrl.mu.Lock()
	defer m.ctrl.mu.Unlock()
	if m.ctrl.last == nil {
		m.ctrl.last = make(map[string]*operations.Operation)
	}
	prev := m.ctrl.last[m.category]
	m.ctrl.last[m.category] = op
	if prev == op {
		return nil
	}
	return prev
}

func (m *mutexCondition) Evaluate(op *operations.Operation, done func(error)) {
	// Exclusion is enforced entirely through the injected dependency.
	done(nil)
}
