// Package mqtt publishes accessory events to an MQTT broker and drives a
// remote gate controller over the espgate topics.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/homekit-gate/internal/store"
)

const (
	// TopicEvents carries characteristic changes and faults.
	TopicEvents = "espgate/events"
	// TopicSystem carries lifecycle events and the OFFLINE will.
	TopicSystem = "espgate/system"
	// TopicSensor is where the remote controller reports its sensors.
	TopicSensor = "espgate/sensor"
	// TopicAct is where the remote controller takes commands.
	TopicAct = "espgate/act"
)

// ErrNotConnected is returned by Send while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a store event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(ev store.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(ev SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// MessageHandler receives messages for a subscription.
type MessageHandler func(topic string, payload []byte)

// Transport is the raw message path used by RemoteDriver.
type Transport interface {
	Send(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, fn MessageHandler) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Config     *SystemConfig
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemConfig is the runtime configuration reported at startup.
type SystemConfig struct {
	Driver     string `json:"driver"`
	PollMs     int64  `json:"poll_ms"`
	DebounceMs int64  `json:"debounce_ms"`
	TimeoutMs  int64  `json:"timeout_ms"`
	Broker     string `json:"broker"`
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Gate GatePayload `json:"gate"`
}

// GatePayload contains one store event.
type GatePayload struct {
	Timestamp      string      `json:"timestamp"`
	Seq            uint64      `json:"seq"`
	Characteristic string      `json:"characteristic"`
	Value          interface{} `json:"value"`
	Origin         string      `json:"origin"`
	Fault          string      `json:"fault,omitempty"`
}

// FormatPayload creates the JSON payload for a store event.
func FormatPayload(ev store.Event) ([]byte, error) {
	payload := Payload{
		Gate: GatePayload{
			Timestamp:      ev.Time.UTC().Format(time.RFC3339),
			Seq:            ev.Seq,
			Characteristic: ev.ID.String(),
			Value:          ev.New.Interface(),
			Origin:         ev.Origin.String(),
		},
	}
	if ev.Fault != nil {
		payload.Gate.Fault = ev.Fault.Error()
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string        `json:"timestamp,omitempty"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	Config    *SystemConfig `json:"config,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
		Config: event.Config,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// WillPayload is registered with the broker at connect time and published
// by it if the connection drops without a clean disconnect.
func WillPayload() []byte {
	b, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	return b
}
