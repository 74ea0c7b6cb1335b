// Package operation drives a lock/unlock command to completion.
//
// A command is one POST that creates an operation resource, followed by a
// bounded series of polls on that resource:
//
//	create ──► poll ──(pending, delay)──► poll ──► ... (at most MaxAttempts polls)
//	                │
//	                ├── failed       → *FailedError, no refresh
//	                ├── other status → Settled, one coordinator refresh
//	                └── budget spent → Unresolved, one coordinator refresh
//
// Unresolved is not success: the runner stopped watching while the server
// still reported pending.
//
// The delay between polls waits on a clockwork.Clock inside a select on the
// context, so cancelling the context stops the loop promptly.
package operation
