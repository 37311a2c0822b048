package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/homekit-gate/internal/model"
	"github.com/sweeney/homekit-gate/internal/network"
	"github.com/sweeney/homekit-gate/internal/store"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func intEvent(id model.ID, from, to int) store.Event {
	return store.Event{ID: id, Old: model.Int(from), New: model.Int(to), Time: start.Add(time.Minute)}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{Driver: "gpio", PollMs: 100, DebounceMs: 50, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.Door != model.DoorStopped {
		t.Errorf("Door: got %d, want STOPPED", snap.Door)
	}
	if snap.Lock != model.LockUnknown {
		t.Errorf("Lock: got %d, want UNKNOWN", snap.Lock)
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestObserveDoorEvents(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.Observe(intEvent(model.CurrentDoorState, model.DoorStopped, model.DoorClosed))
	tr.Observe(intEvent(model.TargetDoorState, model.DoorClosed, model.DoorOpen))
	tr.Observe(intEvent(model.CurrentDoorState, model.DoorClosed, model.DoorOpening))
	tr.Observe(intEvent(model.CurrentDoorState, model.DoorOpening, model.DoorOpen))

	snap := tr.Snapshot()
	if snap.Door != model.DoorOpen {
		t.Errorf("Door: got %d, want OPEN", snap.Door)
	}
	if snap.Target != model.DoorOpen {
		t.Errorf("Target: got %d, want OPEN", snap.Target)
	}
	if snap.Counts.Opened != 1 || snap.Counts.Closed != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if !snap.LastChange.Equal(start.Add(time.Minute)) {
		t.Errorf("LastChange: got %v", snap.LastChange)
	}
}

func TestObserveUnchangedWriteNotCounted(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Observe(intEvent(model.CurrentDoorState, model.DoorOpen, model.DoorOpen))

	if tr.Snapshot().Counts.Opened != 0 {
		t.Error("identical write should not count as an opening")
	}
}

func TestObserveObstructionAndLock(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.Observe(store.Event{ID: model.ObstructionDetected, Old: model.Bool(false), New: model.Bool(true)})
	tr.Observe(store.Event{ID: model.ObstructionDetected, Old: model.Bool(true), New: model.Bool(true)})
	tr.Observe(intEvent(model.LockTargetState, model.LockUnsecured, model.LockSecured))
	tr.Observe(intEvent(model.LockCurrentState, model.LockUnknown, model.LockSecured))

	snap := tr.Snapshot()
	if !snap.Obstructed {
		t.Error("expected Obstructed=true")
	}
	if snap.Counts.Obstructions != 1 {
		t.Errorf("Obstructions: got %d, want 1", snap.Counts.Obstructions)
	}
	if snap.Lock != model.LockSecured || snap.LockTarget != model.LockSecured {
		t.Errorf("Lock: got %d/%d, want SECURED", snap.Lock, snap.LockTarget)
	}
}

func TestObserveFault(t *testing.T) {
	tr := NewTracker(start, Config{})
	at := start.Add(2 * time.Minute)
	tr.Observe(store.Event{
		ID:    model.CurrentDoorState,
		Old:   model.Int(model.DoorStopped),
		New:   model.Int(model.DoorStopped),
		Time:  at,
		Fault: errors.New("actuation timeout"),
	})

	snap := tr.Snapshot()
	if snap.Counts.Faults != 1 {
		t.Errorf("Faults: got %d, want 1", snap.Counts.Faults)
	}
	if snap.LastFault != "CurrentDoorState: actuation timeout" {
		t.Errorf("LastFault: got %q", snap.LastFault)
	}
	if !snap.LastFaultAt.Equal(at) {
		t.Errorf("LastFaultAt: got %v", snap.LastFaultAt)
	}
}

func TestTrackerWithStore(t *testing.T) {
	st := store.New(model.Definitions(model.DefaultIdentity))
	tr := NewTracker(start, Config{})
	st.Subscribe(tr.Observe)

	if err := st.WriteExternal(model.TargetDoorState, model.Int(model.DoorOpen)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := st.WriteInternal(model.CurrentDoorState, model.Int(model.DoorOpening)); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap := tr.Snapshot()
	if snap.Target != model.DoorOpen || snap.Door != model.DoorOpening {
		t.Errorf("got door %d target %d", snap.Door, snap.Target)
	}
}

func TestSetters(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.SetReady(true)
	tr.SetMQTTConnected(true)
	tr.SetPaired(true)
	tr.SetNetwork(&network.Info{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if !snap.Ready || !snap.MQTTConnected || !snap.Paired {
		t.Errorf("setters not applied: %+v", snap)
	}
	if snap.Network == nil || snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network: got %+v", snap.Network)
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Observe(intEvent(model.CurrentDoorState, model.DoorStopped, model.DoorClosed))

	snap1 := tr.Snapshot()
	tr.Observe(intEvent(model.CurrentDoorState, model.DoorClosed, model.DoorOpening))

	if snap1.Door != model.DoorClosed {
		t.Error("snapshot should be a copy; Door was modified")
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DoorName(model.DoorOpen), "OPEN"},
		{DoorName(model.DoorClosing), "CLOSING"},
		{DoorName(model.DoorStopped), "STOPPED"},
		{LockName(model.LockSecured), "SECURED"},
		{LockName(model.LockJammed), "JAMMED"},
		{LockName(model.LockUnknown), "UNKNOWN"},
		{LockName(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Door:          model.DoorClosed,
		Target:        model.DoorClosed,
		Lock:          model.LockSecured,
		LockTarget:    model.LockSecured,
		Ready:         true,
		Counts:        Counts{Opened: 5, Closed: 6, Faults: 1},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Driver: "gpio", PollMs: 100, DebounceMs: 50, TimeoutMs: 30000, Broker: "tcp://localhost:1883", HTTPAddr: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Door != "CLOSED" {
		t.Errorf("Door: got %q, want CLOSED", parsed.Status.Door)
	}
	if parsed.Status.Lock != "SECURED" {
		t.Errorf("Lock: got %q, want SECURED", parsed.Status.Lock)
	}
	if !parsed.Status.Ready {
		t.Error("expected Ready=true")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Counts.Opened != 5 || parsed.Status.Counts.Faults != 1 {
		t.Errorf("Counts: got %+v", parsed.Status.Counts)
	}
	if parsed.Status.Config.TimeoutMs != 30000 {
		t.Errorf("Config.TimeoutMs: got %d", parsed.Status.Config.TimeoutMs)
	}
	if parsed.Status.LastFault != nil {
		t.Error("expected no last_fault without a fault message")
	}
	if parsed.Status.Event != "" || parsed.Status.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatJSONWithFaultAndNetwork(t *testing.T) {
	snap := Snapshot{
		Door:        model.DoorStopped,
		StartTime:   start,
		Now:         start.Add(time.Minute),
		LastFault:   "CurrentDoorState: obstruction detected",
		LastFaultAt: start.Add(30 * time.Second),
		Network:     &network.Info{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.LastFault == nil {
		t.Fatal("expected last_fault")
	}
	if parsed.Status.LastFault.Timestamp != "2026-01-01T00:00:30Z" {
		t.Errorf("LastFault.Timestamp: got %q", parsed.Status.LastFault.Timestamp)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network: got %+v", parsed.Status.Network)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Door:      model.DoorOpen,
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.Door != "OPEN" {
		t.Errorf("Door: got %q, want OPEN", parsed.Status.Door)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	var raw map[string]interface{}
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Observe(intEvent(model.CurrentDoorState, i%5, (i+1)%5))
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&network.Info{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
