// Package history records every lock and unlock command the bridge ran,
// with its outcome, so the API can show what happened to a lock.
package history
