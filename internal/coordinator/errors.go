package coordinator

import "errors"

var (
	// ErrUpdateFailed wraps every failed refresh.
	ErrUpdateFailed = errors.New("coordinator: update failed")

	// ErrNotReady indicates the startup refresh never succeeded.
	ErrNotReady = errors.New("coordinator: lock directory not ready")
)
