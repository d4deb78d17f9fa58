package queue_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sudoplatform/sudo-operations-go/conditions"
	"github.com/sudoplatform/sudo-operations-go/internal/testutil"
	"github.com/sudoplatform/sudo-operations-go/operations"
	"github.com/sudoplatform/sudo-operations-go/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// orderLog records the order in which operation bodies ran.
type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (l *orderLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *orderLog) index(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Index(l.names, name)
}

func (l *orderLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.names)
}

func namedOp(log *orderLog, name string) *operations.Operation {
	return operations.NewFunc(func(op *operations.Operation) {
		log.record(name)
		op.Finish()
	}, operations.WithName(name))
}

func TestRun_RespectsDependencyOrder(t *testing.T) {
	log := &orderLog{}
	a := namedOp(log, "a")
	b := namedOp(log, "b")
	c := namedOp(log, "c")
	d := namedOp(log, "d")
	// Diamond: a → (b, c) → d.
	b.AddDependency(a)
	c.AddDependency(a)
	d.AddDependency(b)
	d.AddDependency(c)

	q := queue.New(queue.WithWorkers(4))
	for _, op := range []*operations.Operation{d, c, b, a} {
		q.Add(op)
	}
	require.NoError(t, q.Run(context.Background()))

	require.Equal(t, 4, log.len())
	assert.Less(t, log.index("a"), log.index("b"))
	assert.Less(t, log.index("a"), log.index("c"))
	assert.Greater(t, log.index("d"), log.index("b"))
	assert.Greater(t, log.index("d"), log.index("c"))
	for _, op := range []*operations.Operation{a, b, c, d} {
		assert.True(t, op.IsFinished())
	}
}

func TestRun_EmptyQueue(t *testing.T) {
	q := queue.New()
	require.NoError(t, q.Run(context.Background()))
}

func TestRun_CalledTwice(t *testing.T) {
	q := queue.New()
	require.NoError(t, q.Run(context.Background()))
	assert.Error(t, q.Run(context.Background()))
}

func TestRun_FailurePropagatesToDependents(t *testing.T) {
	boom := errors.New("boom")
	failing := operations.NewFunc(func(op *operations.Operation) {
		op.FinishWithError(boom)
	}, operations.WithName("failing"))

	var dependentRan atomic.Bool
	dependent := operations.NewFunc(func(op *operations.Operation) {
		dependentRan.Store(true)
		op.Finish()
	}, operations.WithName("dependent"))
	dependent.AddDependency(failing)

	q := queue.New()
	q.Add(failing)
	q.Add(dependent)
	err := q.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.NotContains(t, err.Error(), "dependent", "an upstream failure is a symptom, not a cause")

	assert.False(t, dependentRan.Load())
	require.True(t, dependent.IsFinished())
	require.Len(t, dependent.Errors(), 1)
	assert.ErrorIs(t, dependent.Errors()[0], operations.ErrCustomConditionFailed)
}

func TestRun_ProducedOperationIsScheduled(t *testing.T) {
	var childRan atomic.Bool
	child := operations.NewFunc(func(op *operations.Operation) {
		childRan.Store(true)
		op.Finish()
	}, operations.WithName("child"))

	parent := operations.NewFunc(func(op *operations.Operation) {
		op.Produce(child)
		op.Finish()
	}, operations.WithName("parent"))

	q := queue.New()
	q.Add(parent)
	require.NoError(t, q.Run(context.Background()))

	assert.True(t, childRan.Load())
	assert.True(t, child.IsFinished())
}

func TestRun_ConditionDependencyIsAdmitted(t *testing.T) {
	log := &orderLog{}
	prereq := namedOp(log, "prereq")

	guarded := namedOp(log, "guarded")
	guarded.AddCondition(&testutil.StubCondition{CondName: "needs-prereq", Dep: prereq})

	q := queue.New()
	q.Add(guarded)
	require.NoError(t, q.Run(context.Background()))

	require.Equal(t, 2, log.len())
	assert.Less(t, log.index("prereq"), log.index("guarded"))
}

func TestRun_MutualExclusionSerializesCategory(t *testing.T) {
	ctrl := conditions.NewExclusivityController()

	var current, peak atomic.Int32
	body := func(op *operations.Operation) {
		if c := current.Add(1); c > peak.Load() {
			peak.Store(c)
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		op.Finish()
	}

	first := operations.NewFunc(body, operations.WithName("first"))
	first.AddCondition(ctrl.MutuallyExclusive("category"))
	second := operations.NewFunc(body, operations.WithName("second"))
	second.AddCondition(ctrl.MutuallyExclusive("category"))

	q := queue.New(queue.WithWorkers(4))
	q.Add(first)
	q.Add(second)
	require.NoError(t, q.Run(context.Background()))

	assert.Equal(t, int32(1), peak.Load())
}

func TestRun_ContextCancellationDrainsCooperatively(t *testing.T) {
	started := make(chan struct{})
	var bodyObservedCancel atomic.Bool
	op := operations.NewFunc(func(op *operations.Operation) {
		close(started)
		for !op.Cancelled() {
			time.Sleep(5 * time.Millisecond)
		}
		bodyObservedCancel.Store(true)
		op.Finish()
	}, operations.WithName("long-running"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	q := queue.New()
	q.Add(op)
	err := q.Run(ctx)

	require.NoError(t, err, "pure cancellation is not a root-cause failure")
	assert.True(t, bodyObservedCancel.Load())
	require.True(t, op.IsFinished())
	require.NotEmpty(t, op.Errors())
	assert.ErrorIs(t, op.Errors()[0], context.Canceled)
}

func TestRun_CancelledBeforeRunFinishesWithoutBody(t *testing.T) {
	var ran atomic.Bool
	op := operations.NewFunc(func(op *operations.Operation) {
		ran.Store(true)
		op.Finish()
	}, operations.WithName("cancelled-early"))

	q := queue.New()
	q.Add(op)
	op.Cancel()
	require.NoError(t, q.Run(context.Background()))

	assert.False(t, ran.Load())
	assert.True(t, op.IsFinished())
	assert.Empty(t, op.Errors())
}
