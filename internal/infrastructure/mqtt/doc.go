// Package mqtt connects the Glue Home bridge to the Gray Logic MQTT bus.
//
// The client wraps paho with:
//   - auto-reconnect and subscription restore after a reconnect
//   - topic, QoS and payload validation before every publish
//   - a Last Will on the bridge health topic so the hub sees the bridge go offline
//   - panic recovery around message handlers
//
// Topics follow the flat Gray Logic scheme with the bridge name "gluehome":
//
//	graylogic/state/gluehome/{entityUniqueID}   retained entity state
//	graylogic/command/gluehome/{lockID}         lock / unlock commands
//	graylogic/ack/gluehome/{lockID}             command acknowledgements
//	graylogic/health/gluehome                   retained bridge health + LWT
//	graylogic/discovery/gluehome                device discovery
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.CommandSubscribe(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
