// Package testutil provides small fakes for testing operation lifecycles.
package testutil

import (
	"slices"
	"sync"

	"github.com/sudoplatform/sudo-operations-go/operations"
)

// SyncExecutor runs callbacks inline on the calling goroutine, making
// condition evaluation deterministic in tests.
type SyncExecutor struct{}

func (SyncExecutor) Execute(fn func()) {
	fn()
}

// Recorder is an observer that records the events it receives. Safe for
// concurrent use.
type Recorder struct {
	mu         sync.Mutex
	started    int
	finished   int
	produced   []*operations.Operation
	finishErrs []error
}

func (r *Recorder) OperationDidStart(*operations.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *Recorder) OperationDidProduce(_, produced *operations.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.produced = append(r.produced, produced)
}

func (r *Recorder) OperationDidFinish(_ *operations.Operation, errs []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	r.finishErrs = slices.Clone(errs)
}

// Started returns how many start notifications arrived.
func (r *Recorder) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Finished returns how many finish notification passes arrived.
func (r *Recorder) Finished() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Produced returns the operations produced so far.
func (r *Recorder) Produced() []*operations.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.produced)
}

// FinishErrors returns the error list delivered with the finish event.
func (r *Recorder) FinishErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.finishErrs)
}

// StubCondition evaluates synchronously to a fixed outcome.
type StubCondition struct {
	CondName string
	Err      error
	Dep      *operations.Operation
}

func (s *StubCondition) Name() string {
	if s.CondName == "" {
		return "stub"
	}
	return s.CondName
}

func (s *StubCondition) Dependency(*operations.Operation) *operations.Operation {
	return s.Dep
}

func (s *StubCondition) Evaluate(_ *operations.Operation, done func(error)) {
	done(s.Err)
}

// RunToReady drives op through enqueue and condition evaluation the way a
// scheduler would: WillEnqueue, then readiness probes until the operation
// reports ready. Use it with SyncExecutor so evaluation completes inline.
func RunToReady(op *operations.Operation) {
	if op.State() == operations.StateInitialized {
		op.WillEnqueue()
	}
	// First probe kicks off condition evaluation, second observes the result.
	for i := 0; i < 16 && !op.IsReady(); i++ {
	}
}
