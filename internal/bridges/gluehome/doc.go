// Package gluehome bridges Glue Home locks onto the Gray Logic MQTT bus.
//
// The bridge does not poll anything itself. It listens to the poll
// coordinator and, after every successful refresh, publishes a retained
// state message for each entity (the lock and its three diagnostic
// sensors). When the set of lock IDs changes it also publishes a discovery
// message. Entity transitions (locking, unlocking) are published as they
// happen.
//
// Commands arrive on graylogic/command/gluehome/{lockID}. Each one is
// acknowledged "accepted" straight away and runs in its own goroutine
// through the lock operation state machine; the final ack is one of
// "completed", "failed" or "timeout".
//
// Health is published every 30 seconds, retained, on graylogic/health/gluehome.
package gluehome
