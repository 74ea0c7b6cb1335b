package gluehome

import "errors"

var (
	// ErrMissingMQTTClient is returned by NewBridge without an MQTT client.
	ErrMissingMQTTClient = errors.New("gluehome: MQTT client is required")

	// ErrMissingCoordinator is returned by NewBridge without a lock directory.
	ErrMissingCoordinator = errors.New("gluehome: coordinator is required")

	// ErrMissingEntities is returned by NewBridge without an entity set.
	ErrMissingEntities = errors.New("gluehome: entity set is required")
)
