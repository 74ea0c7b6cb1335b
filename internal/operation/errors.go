package operation

import (
	"errors"
	"fmt"
)

// ErrInvalidAction indicates an action other than lock or unlock.
var ErrInvalidAction = errors.New("operation: action must be lock or unlock")

// FailedError indicates the server reported the operation as failed.
type FailedError struct {
	LockDescription string
	Action          string
	Reason          string
}

func (e *FailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("operation: %s of %q failed", e.Action, e.LockDescription)
	}
	return fmt.Sprintf("operation: %s of %q failed: %s", e.Action, e.LockDescription, e.Reason)
}

// IsFailed reports whether err is (or wraps) a *FailedError.
func IsFailed(err error) bool {
	var failed *FailedError
	return errors.As(err, &failed)
}
