// Package queue carries space notifications and sensor reports over
// RabbitMQ.
package queue

import (
	"strconv"
	"strings"
)

// SpaceReport is the body of a sensor message on the reports queue.
// SpaceID may be omitted when the routing key names the slot.
type SpaceReport struct {
	SpaceID    uint64 `json:"space_id"`
	State      string `json:"state"`
	ObservedAt string `json:"observed_at,omitempty"`
}

// SensorBindingKey binds the reports queue to sensor messages published on
// the exchange, e.g. smartparking.slot3.sensor.
const SensorBindingKey = "smartparking.*.sensor"

// RoutingKey maps a slash separated topic onto an AMQP routing key.
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// SpaceFromRoutingKey extracts the space id from keys shaped like
// smartparking.slot<id>.<kind>.  It returns 0 when the key does not match.
func SpaceFromRoutingKey(key string) uint64 {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "smartparking" || !strings.HasPrefix(parts[1], "slot") {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "slot"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
