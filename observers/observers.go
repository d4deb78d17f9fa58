// Package observers provides stock lifecycle observers for operations.
package observers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sudoplatform/sudo-operations-go/operations"
)

// Block builds an observer from function values; nil fields are no-ops.
type Block struct {
	StartFn   func(op *operations.Operation)
	ProduceFn func(op, produced *operations.Operation)
	FinishFn  func(op *operations.Operation, errs []error)
}

func (b *Block) OperationDidStart(op *operations.Operation) {
	if b.StartFn != nil {
		b.StartFn(op)
	}
}

func (b *Block) OperationDidProduce(op, produced *operations.Operation) {
	if b.ProduceFn != nil {
		b.ProduceFn(op, produced)
	}
}

func (b *Block) OperationDidFinish(op *operations.Operation, errs []error) {
	if b.FinishFn != nil {
		b.FinishFn(op, errs)
	}
}

// ErrTimedOut is recorded by a Timeout watchdog when it cancels its
// operation.
var ErrTimedOut = errors.New("operation timed out")

// Timeout is a watchdog observer: it arms a timer when the operation starts
// executing and cancels the operation if it has not finished when the timer
// fires. The subsystem has no built-in timeouts; this is the composition
// callers use instead. Attach one Timeout to at most one operation.
type Timeout struct {
	// After is how long the body may run before the watchdog cancels it.
	After time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (t *Timeout) OperationDidStart(op *operations.Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(t.After, func() {
		if !op.IsFinished() {
			op.CancelWithError(fmt.Errorf("%w: %q did not finish within %v", ErrTimedOut, op.Name(), t.After))
		}
	})
}

func (t *Timeout) OperationDidProduce(_, _ *operations.Operation) {}

func (t *Timeout) OperationDidFinish(op *operations.Operation, errs []error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Logger logs lifecycle events through slog.
type Logger struct {
	// Log is the destination logger; nil falls back to slog.Default().
	Log *slog.Logger
}

func (l *Logger) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}

func (l *Logger) OperationDidStart(op *operations.Operation) {
	l.logger().Info("operation started", "operation", op.Name(), "id", op.ID())
}

func (l *Logger) OperationDidProduce(op, produced *operations.Operation) {
	l.logger().Info("operation produced", "operation", op.Name(), "produced", produced.Name())
}

func (l *Logger) OperationDidFinish(op *operations.Operation, errs []error) {
	if len(errs) > 0 {
		l.logger().Error("operation failed", "operation", op.Name(), "id", op.ID(), "error", errors.Join(errs...))
		return
	}
	l.logger().Info("operation finished", "operation", op.Name(), "id", op.ID())
}
