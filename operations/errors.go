package operations

import (
	"errors"
	"fmt"
)

// ErrConditionFailed is the sentinel matched by errors.Is against every
// *ConditionError.
var ErrConditionFailed = errors.New("operation condition failed")

// ErrCustomConditionFailed is recorded when the custom-condition check
// refuses to run the body. With the default policy that means a dependency
// of the operation finished with errors.
var ErrCustomConditionFailed = errors.New("operation custom condition check failed")

// ConditionError records the failure of a single declared condition.
type ConditionError struct {
	// Condition is the name of the condition that failed.
	Condition string
	// Err is the underlying failure reported by the condition.
	Err error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %q failed: %v", e.Condition, e.Err)
}

func (e *ConditionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConditionFailed) hold for all condition
// failures regardless of the underlying error.
func (e *ConditionError) Is(target error) bool {
	return target == ErrConditionFailed
}
