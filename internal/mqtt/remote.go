package mqtt

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/homekit-gate/internal/gpio"
)

// Sensor payloads published by the remote controller on TopicSensor.
const (
	SensorOpen       = "open"
	SensorClosed     = "closed"
	SensorMoving     = "moving"
	SensorObstructed = "obstructed"
	SensorFault      = "fault"
	SensorLocked     = "locked"
	SensorUnlocked   = "unlocked"
)

// Commands accepted by the remote controller on TopicAct.
const (
	ActOpen   = "open"
	ActClose  = "close"
	ActStop   = "stop"
	ActLock   = "lock"
	ActUnlock = "unlock"
	ActPing   = "ping"
)

// RemoteConfig tunes a RemoteDriver.
type RemoteConfig struct {
	// StaleAfter is how long the controller may stay quiet before it is
	// pinged. Zero disables the stale ping.
	StaleAfter time.Duration
	// Travel is how long after an open or close command position reports
	// are treated as the gate still moving. Zero trusts every report.
	Travel time.Duration
}

// pingRetry rate limits pings that could not be sent.
const pingRetry = 5 * time.Second

// RemoteDriver is a gpio.Driver for a gate controller on the far side of
// the broker. Sensor messages update a cached snapshot; PollSensors returns
// it and pings the controller when it has gone quiet.
//
// The controller only reports "open" or "closed". For cfg.Travel after a
// move command those reports mean the gate is on its way; once the window
// ends the last report becomes the position and the controller is pinged.
type RemoteDriver struct {
	transport Transport
	log       *log.Logger
	now       func() time.Time
	cfg       RemoteConfig

	mu          sync.Mutex
	snap        gpio.SensorSnapshot
	lastSeen    time.Time
	lastPing    time.Time
	pingPending bool
	commandAt   time.Time
	settle      string
}

// NewRemoteDriver subscribes to TopicSensor and pings the controller for its
// current state. A ping that cannot be sent is retried from PollSensors.
func NewRemoteDriver(t Transport, cfg RemoteConfig, logger *log.Logger) (*RemoteDriver, error) {
	r := &RemoteDriver{
		transport: t,
		log:       logger,
		now:       time.Now,
		cfg:       cfg,
	}
	if err := t.Subscribe(TopicSensor, 1, r.handle); err != nil {
		return nil, fmt.Errorf("subscribe sensor topic: %w", err)
	}
	r.ping("startup")
	return r, nil
}

// SetClock replaces the time source. For tests.
func (r *RemoteDriver) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *RemoteDriver) handle(_ string, payload []byte) {
	msg := strings.ToLower(strings.TrimSpace(string(payload)))
	if msg == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := r.snap
	switch msg {
	case SensorOpen, SensorClosed:
		s.Obstructed, s.Fault = false, false
		if r.traveling(now) {
			s.FullyOpen, s.FullyClosed = false, false
			r.settle = msg
			break
		}
		s.FullyOpen, s.FullyClosed = msg == SensorOpen, msg == SensorClosed
	case SensorMoving:
		s.FullyOpen, s.FullyClosed = false, false
		s.Obstructed, s.Fault = false, false
	case SensorObstructed:
		s.Obstructed = true
	case SensorFault:
		s.Fault = true
	case SensorLocked:
		s.LockKnown, s.Locked = true, true
	case SensorUnlocked:
		s.LockKnown, s.Locked = true, false
	default:
		r.log.Warn("unknown sensor payload", "payload", msg)
		return
	}
	s.Valid = true
	r.snap = s
	r.lastSeen = now
	r.pingPending = false
	r.log.Debug("sensor message", "payload", msg)
}

// traveling reports whether a move command is inside its travel window.
// Called with r.mu held.
func (r *RemoteDriver) traveling(now time.Time) bool {
	return !r.commandAt.IsZero() && now.Sub(r.commandAt) < r.cfg.Travel
}

func (r *RemoteDriver) send(cmd string) error {
	if err := r.transport.Send(TopicAct, 1, false, []byte(cmd)); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

func (r *RemoteDriver) ping(from string) {
	r.mu.Lock()
	r.lastPing = r.now()
	r.mu.Unlock()

	r.log.Info("ping", "from", from)
	err := r.send(ActPing)
	if err != nil {
		r.log.Warn("ping failed", "err", err)
	}
	r.mu.Lock()
	r.pingPending = err != nil
	r.mu.Unlock()
}

// Ping asks the controller to report its sensors. Called on reconnect.
func (r *RemoteDriver) Ping() { r.ping("reconnect") }

func (r *RemoteDriver) OpenDoor() error  { return r.move(ActOpen) }
func (r *RemoteDriver) CloseDoor() error { return r.move(ActClose) }

// StopDoor sends stop and ends any travel window.
func (r *RemoteDriver) StopDoor() error {
	err := r.send(ActStop)
	r.mu.Lock()
	r.commandAt, r.settle = time.Time{}, ""
	r.mu.Unlock()
	return err
}

func (r *RemoteDriver) move(cmd string) error {
	if err := r.send(cmd); err != nil {
		return err
	}
	if r.cfg.Travel > 0 {
		r.mu.Lock()
		r.commandAt, r.settle = r.now(), ""
		r.snap.FullyOpen, r.snap.FullyClosed = false, false
		r.mu.Unlock()
	}
	return nil
}

// SetLock sends lock or unlock.
func (r *RemoteDriver) SetLock(secured bool) error {
	if secured {
		return r.send(ActLock)
	}
	return r.send(ActUnlock)
}

// PollSensors returns the last reported snapshot. Valid stays false until
// the controller has reported once.
func (r *RemoteDriver) PollSensors() (gpio.SensorSnapshot, error) {
	r.mu.Lock()
	now := r.now()
	settled := !r.commandAt.IsZero() && !r.traveling(now)
	if settled {
		switch r.settle {
		case SensorOpen:
			r.snap.FullyOpen = true
		case SensorClosed:
			r.snap.FullyClosed = true
		}
		r.commandAt, r.settle = time.Time{}, ""
	}
	snap := r.snap
	stale := r.cfg.StaleAfter > 0 &&
		now.Sub(r.lastSeen) > r.cfg.StaleAfter &&
		now.Sub(r.lastPing) > r.cfg.StaleAfter
	retry := r.pingPending && now.Sub(r.lastPing) >= pingRetry
	r.mu.Unlock()

	switch {
	case settled:
		r.ping("travel")
	case retry:
		r.ping("retry")
	case stale:
		r.ping("stale")
	}
	return snap, nil
}

// Close is a no-op; the Client owns the connection.
func (r *RemoteDriver) Close() error { return nil }
