package operations_test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudoplatform/sudo-operations-go/internal/testutil"
	"github.com/sudoplatform/sudo-operations-go/operations"
)

func TestEvaluateConditions_EmptyListCompletesImmediately(t *testing.T) {
	op := newSyncOp(func(op *operations.Operation) { op.Finish() })

	called := 0
	operations.EvaluateConditions(testutil.SyncExecutor{}, nil, op, func(failures []error) {
		called++
		assert.Empty(t, failures)
	})
	assert.Equal(t, 1, called)
}

func TestEvaluateConditions_CollectsFailuresInConditionOrder(t *testing.T) {
	op := newSyncOp(func(op *operations.Operation) { op.Finish() })
	conds := []operations.Condition{
		&testutil.StubCondition{CondName: "c0"},
		&testutil.StubCondition{CondName: "c1", Err: errors.New("first failure")},
		&testutil.StubCondition{CondName: "c2"},
		&testutil.StubCondition{CondName: "c3", Err: errors.New("second failure")},
		&testutil.StubCondition{CondName: "c4"},
	}

	var got []error
	operations.EvaluateConditions(testutil.SyncExecutor{}, conds, op, func(failures []error) {
		got = failures
	})

	require.Len(t, got, 2)
	var first, second *operations.ConditionError
	require.ErrorAs(t, got[0], &first)
	require.ErrorAs(t, got[1], &second)
	assert.Equal(t, "c1", first.Condition)
	assert.Equal(t, "c3", second.Condition)
}

// slowCondition completes after a fixed delay, so later conditions can
// finish earlier than earlier ones.
type slowCondition struct {
	name  string
	delay time.Duration
	err   error
}

func (s *slowCondition) Name() string { return s.name }

func (s *slowCondition) Dependency(*operations.Operation) *operations.Operation { return nil }

func (s *slowCondition) Evaluate(_ *operations.Operation, done func(error)) {
	time.Sleep(s.delay)
	done(s.err)
}

func TestEvaluateConditions_OrderIsStableUnderReversedCompletion(t *testing.T) {
	op := operations.NewFunc(func(op *operations.Operation) { op.Finish() })

	// Earlier conditions are slower, so arrival order is the reverse of
	// declaration order.
	var conds []operations.Condition
	for i := 0; i < 4; i++ {
		conds = append(conds, &slowCondition{
			name:  fmt.Sprintf("c%d", i),
			delay: time.Duration(4-i) * 10 * time.Millisecond,
			err:   fmt.Errorf("failure %d", i),
		})
	}

	done := make(chan []error, 1)
	operations.EvaluateConditions(operations.GoExecutor{}, conds, op, func(failures []error) {
		done <- failures
	})

	select {
	case failures := <-done:
		require.Len(t, failures, 4)
		for i, failure := range failures {
			var condErr *operations.ConditionError
			require.ErrorAs(t, failure, &condErr)
			assert.Equal(t, fmt.Sprintf("c%d", i), condErr.Condition)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("evaluator never completed")
	}
}

// chattyCondition fires its callback twice.
type chattyCondition struct {
	name string
}

func (c *chattyCondition) Name() string { return c.name }

func (c *chattyCondition) Dependency(*operations.Operation) *operations.Operation { return nil }

func (c *chattyCondition) Evaluate(_ *operations.Operation, done func(error)) {
	done(nil)
	done(errors.New("second call must be ignored"))
}

func TestEvaluateConditions_DoubleCallbackIsIgnored(t *testing.T) {
	op := newSyncOp(func(op *operations.Operation) { op.Finish() })
	conds := []operations.Condition{
		&chattyCondition{name: "chatty"},
		&testutil.StubCondition{CondName: "quiet"},
	}

	var completions atomic.Int32
	var got []error
	operations.EvaluateConditions(testutil.SyncExecutor{}, conds, op, func(failures []error) {
		completions.Add(1)
		got = failures
	})

	assert.Equal(t, int32(1), completions.Load())
	assert.Empty(t, got)
}
