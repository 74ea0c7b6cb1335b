package entity

import "errors"

// ErrLockNotFound indicates the lock is not in the current directory.
var ErrLockNotFound = errors.New("entity: lock not found")
