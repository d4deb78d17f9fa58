package operations

import "strconv"

// State is the lifecycle state of an Operation. States are ordered; an
// operation only ever advances.
type State int32

const (
	// StateInitialized is the state of a freshly constructed operation.
	StateInitialized State = iota
	// StatePending means the operation has been enqueued and is waiting for
	// its dependencies to finish.
	StatePending
	// StateEvaluatingConditions means the operation's declared conditions
	// are being evaluated.
	StateEvaluatingConditions
	// StateReady means the operation may be handed to the scheduler's entry
	// point.
	StateReady
	// StateExecuting means the operation body is running.
	StateExecuting
	// StateFinished is the terminal state. Once reached, the operation is
	// immutable.
	StateFinished
)

var stateNames = map[State]string{
	StateInitialized:          "initialized",
	StatePending:              "pending",
	StateEvaluatingConditions: "evaluatingConditions",
	StateReady:                "ready",
	StateExecuting:            "executing",
	StateFinished:             "finished",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// canTransitionTo reports whether the s → to edge exists in the Operation
// state machine.
//
// Valid transitions:
//
//	Initialized          → Pending
//	Pending              → EvaluatingConditions | Finished
//	EvaluatingConditions → Ready
//	Ready                → Executing | Finished
//	Executing            → Finished
//
// The edges to Finished from Pending and Ready are the cancellation
// fast-path.
func (s State) canTransitionTo(to State) bool {
	switch s {
	case StateInitialized:
		return to == StatePending
	case StatePending:
		return to == StateEvaluatingConditions || to == StateFinished
	case StateEvaluatingConditions:
		return to == StateReady
	case StateReady:
		return to == StateExecuting || to == StateFinished
	case StateExecuting:
		return to == StateFinished
	default:
		// Finished is terminal.
		return false
	}
}
