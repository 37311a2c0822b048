package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/homekit-gate/internal/store"
)

// ClientConfig configures the broker connection.
type ClientConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	BacklogSize int
}

type subscription struct {
	qos byte
	fn  MessageHandler
}

// Client is a Publisher and Transport backed by a real broker. Events
// published while the broker is unreachable are kept in a backlog and
// replayed on reconnect; raw Sends are not.
type Client struct {
	client paho.Client
	log    *log.Logger

	mu          sync.Mutex
	backlog     *ringBuffer
	subs        map[string]subscription
	connected   bool
	connects    int
	onReconnect func()
}

// NewClient connects to the broker. If the broker is not reachable within
// 10 seconds the client keeps retrying in the background and NewClient
// returns without error.
func NewClient(cfg ClientConfig, logger *log.Logger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "homekit-gate"
	}

	c := &Client{
		log:     logger,
		backlog: newRingBuffer(cfg.BacklogSize),
		subs:    make(map[string]subscription),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(WillPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { c.handleLost(err) })
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn("broker not reachable yet, buffering events", "broker", cfg.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// OnReconnect registers fn to run after every connect except the first.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	c.connects++
	first := c.connects == 1
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	pending, dropped := c.backlog.drainAll()
	hook := c.onReconnect
	c.mu.Unlock()

	c.log.Info("connected to mqtt", "reconnect", !first)

	for topic, s := range subs {
		if err := c.subscribe(topic, s); err != nil {
			c.log.Error("resubscribe failed", "topic", topic, "err", err)
		}
	}

	if dropped > 0 {
		c.log.Warn("backlog overflowed while disconnected", "dropped", dropped)
	}
	if len(pending) > 0 {
		c.log.Info("replaying backlog", "messages", len(pending))
	}
	for _, m := range pending {
		c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}

	if !first && hook != nil {
		go hook()
	}
}

func (c *Client) handleLost(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.log.Error("connection to mqtt lost", "err", err)
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Publish sends a store event to TopicEvents.
func (c *Client) Publish(ev store.Event) error {
	payload, err := FormatPayload(ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return c.publishBuffered(TopicEvents, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to TopicSystem.
func (c *Client) PublishSystem(ev SystemEvent) error {
	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return c.publishBuffered(TopicSystem, 1, ev.Retained, payload)
}

func (c *Client) publishBuffered(topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	if !c.connected {
		if c.backlog.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}) {
			c.log.Warn("mqtt backlog full, dropping oldest", "capacity", c.backlog.capacity)
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Send publishes payload to topic. It fails with ErrNotConnected while
// disconnected rather than queueing, so commands are never replayed late.
func (c *Client) Send(topic string, qos byte, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("send to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers fn for topic. Subscriptions are restored after every
// reconnect.
func (c *Client) Subscribe(topic string, qos byte, fn MessageHandler) error {
	s := subscription{qos: qos, fn: fn}
	c.mu.Lock()
	c.subs[topic] = s
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.subscribe(topic, s)
}

func (c *Client) subscribe(topic string, s subscription) error {
	token := c.client.Subscribe(topic, s.qos, func(_ paho.Client, msg paho.Message) {
		msg.Ack()
		s.fn(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
