// Package coordinator owns the shared lock directory and keeps it fresh.
//
// One Coordinator is built at startup and handed to everything that reads
// lock state. It refreshes the directory on a fixed interval while at least
// one subscriber is attached, and on demand after a lock operation settles.
//
// A refresh either replaces the whole directory (an atomic pointer swap, so
// readers see the old or the new directory and never a mix) or leaves the
// previous one in place and reports the failure to subscribers. Invalid
// credentials are fatal: Run stops and returns the error.
package coordinator
