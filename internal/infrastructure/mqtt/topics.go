package mqtt

import "strings"

// BridgeName is the bridge segment of every topic this bridge uses.
const BridgeName = "gluehome"

// Topic prefixes of the flat Gray Logic scheme.
const (
	topicRoot      = "graylogic"
	topicState     = topicRoot + "/state/" + BridgeName
	topicCommand   = topicRoot + "/command/" + BridgeName
	topicAck       = topicRoot + "/ack/" + BridgeName
	topicHealth    = topicRoot + "/health/" + BridgeName
	topicDiscovery = topicRoot + "/discovery/" + BridgeName
)

// Topics builds MQTT topic strings for the Glue Home bridge.
//
// The zero value is ready to use:
//
//	topic := mqtt.Topics{}.State("lock-1-battery")
type Topics struct{}

// State returns the retained state topic of one entity.
func (Topics) State(uniqueID string) string {
	return topicState + "/" + uniqueID
}

// Command returns the command topic of one lock.
func (Topics) Command(lockID string) string {
	return topicCommand + "/" + lockID
}

// CommandSubscribe returns the wildcard matching commands for every lock.
func (Topics) CommandSubscribe() string {
	return topicCommand + "/+"
}

// Ack returns the acknowledgement topic of one lock.
func (Topics) Ack(lockID string) string {
	return topicAck + "/" + lockID
}

// Health returns the retained bridge health topic.
func (Topics) Health() string {
	return topicHealth
}

// Discovery returns the device discovery topic.
func (Topics) Discovery() string {
	return topicDiscovery
}

// LockIDFromCommand extracts the lock ID from a command topic.
//
// Returns:
//   - string: The lock ID
//   - bool: false if the topic is not a single-level command topic
func (Topics) LockIDFromCommand(topic string) (string, bool) {
	lockID, ok := strings.CutPrefix(topic, topicCommand+"/")
	if !ok || lockID == "" || strings.ContainsAny(lockID, "/+#") {
		return "", false
	}
	return lockID, true
}
