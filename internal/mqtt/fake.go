package mqtt

import (
	"sync"

	"github.com/sweeney/homekit-gate/internal/store"
)

// FakePublisher records published events for test assertions. Read the
// recorded fields only after publishing goroutines have finished.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all store events that were published.
	Events []store.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the store event.
func (f *FakePublisher) Publish(ev store.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(ev)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, ev)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(ev SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, ev)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// EventCount returns the number of store events published so far.
func (f *FakePublisher) EventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

// Message is a payload recorded by FakeTransport.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  string
}

// FakeTransport records sent messages and lets tests deliver messages to
// subscribers.
type FakeTransport struct {
	mu       sync.Mutex
	sent     []Message
	handlers map[string]MessageHandler

	// SendError, if set, will be returned by Send.
	SendError error
	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error
}

// NewFakeTransport creates a FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{handlers: make(map[string]MessageHandler)}
}

// Send records the message.
func (f *FakeTransport) Send(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.sent = append(f.sent, Message{Topic: topic, QoS: qos, Retained: retained, Payload: string(payload)})
	return nil
}

// Subscribe records the handler for topic.
func (f *FakeTransport) Subscribe(topic string, _ byte, fn MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.handlers[topic] = fn
	return nil
}

// Deliver calls the handler subscribed to topic, if any.
func (f *FakeTransport) Deliver(topic, payload string) {
	f.mu.Lock()
	fn := f.handlers[topic]
	f.mu.Unlock()
	if fn != nil {
		fn(topic, []byte(payload))
	}
}

// Sent returns the payloads sent to topic.
func (f *FakeTransport) Sent(topic string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}
