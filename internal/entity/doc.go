// Package entity maps lock snapshots onto the entities the host platform
// publishes: one lock actuator and three diagnostic sensors per lock.
//
// Entities hold only a lock ID and a reference to the directory source;
// every accessor looks the lock up again, so a refreshed directory is
// visible immediately and a lock that disappears makes its entities
// unavailable rather than stale.
//
// Availability policy: a lock is available while its connection status is
// connected or busy. An available lock whose last event type is in neither
// the locked nor the unlocked list reports the unknown state.
package entity
