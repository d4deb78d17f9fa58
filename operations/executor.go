package operations

// Executor runs callbacks asynchronously on behalf of an operation. It is
// injected rather than hidden behind a global so that tests can substitute a
// synchronous, deterministic implementation.
type Executor interface {
	Execute(fn func())
}

// GoExecutor is the default Executor: every callback gets its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Execute(fn func()) {
	go fn()
}
