// Package status provides a thread-safe status tracker for the gate daemon.
// It observes the characteristic store and is read by HTTP handlers and the
// MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/homekit-gate/internal/model"
	"github.com/sweeney/homekit-gate/internal/network"
	"github.com/sweeney/homekit-gate/internal/store"
)

// Config contains daemon configuration for display.
type Config struct {
	Driver     string
	PollMs     int64
	DebounceMs int64
	TimeoutMs  int64
	Broker     string
	HTTPAddr   string
	HAPAddr    string
}

// Counts tallies door activity since startup.
type Counts struct {
	Opened       int
	Closed       int
	Obstructions int
	Faults       int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Door          int
	Target        int
	Obstructed    bool
	Lock          int
	LockTarget    int
	Ready         bool
	Counts        Counts
	LastFault     string
	LastFaultAt   time.Time
	LastChange    time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Paired        bool
	Network       *network.Info
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config. Door
// and lock start at their initial characteristic values.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Door:       model.DoorStopped,
			Target:     model.DoorClosed,
			Lock:       model.LockUnknown,
			LockTarget: model.LockUnsecured,
			StartTime:  startTime,
			Config:     cfg,
		},
	}
}

// Observe is a store.Observer that keeps the snapshot in step with the
// characteristic store.
func (t *Tracker) Observe(ev store.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.IsFault() {
		t.snap.Counts.Faults++
		t.snap.LastFault = ev.ID.String() + ": " + ev.Fault.Error()
		t.snap.LastFaultAt = ev.Time
		return
	}

	t.snap.LastChange = ev.Time
	switch ev.ID {
	case model.CurrentDoorState:
		n, _ := ev.New.AsInt()
		if ev.Changed() {
			switch n {
			case model.DoorOpen:
				t.snap.Counts.Opened++
			case model.DoorClosed:
				t.snap.Counts.Closed++
			}
		}
		t.snap.Door = n
	case model.TargetDoorState:
		t.snap.Target, _ = ev.New.AsInt()
	case model.ObstructionDetected:
		b, _ := ev.New.AsBool()
		if b && !t.snap.Obstructed {
			t.snap.Counts.Obstructions++
		}
		t.snap.Obstructed = b
	case model.LockCurrentState:
		t.snap.Lock, _ = ev.New.AsInt()
	case model.LockTargetState:
		t.snap.LockTarget, _ = ev.New.AsInt()
	}
}

// SetReady marks the door as baselined.
func (t *Tracker) SetReady(ready bool) {
	t.mu.Lock()
	t.snap.Ready = ready
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetPaired sets whether a HomeKit controller is paired.
func (t *Tracker) SetPaired(paired bool) {
	t.mu.Lock()
	t.snap.Paired = paired
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *network.Info) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
