package main

import "github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/mqtt"

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
//   - infrastructure mqtt: func(topic string, payload []byte) error
//   - bridge: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect is a no-op: the client is closed by run's defer chain.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
