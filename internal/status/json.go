package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/homekit-gate/internal/bridge"
	"github.com/sweeney/homekit-gate/internal/model"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Door          string       `json:"door"`
	Target        string       `json:"target"`
	Obstructed    bool         `json:"obstructed"`
	Lock          string       `json:"lock"`
	LockTarget    string       `json:"lock_target"`
	Ready         bool         `json:"ready"`
	Paired        bool         `json:"paired"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastFault     *FaultJSON   `json:"last_fault,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// FaultJSON is the most recent fault reported by the bridge.
type FaultJSON struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of door counters.
type CountsJSON struct {
	Opened       int `json:"opened"`
	Closed       int `json:"closed"`
	Obstructions int `json:"obstructions"`
	Faults       int `json:"faults"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Driver     string `json:"driver"`
	PollMs     int64  `json:"poll_ms"`
	DebounceMs int64  `json:"debounce_ms"`
	TimeoutMs  int64  `json:"timeout_ms"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
	HAPAddr    string `json:"hap_addr"`
}

// DoorName returns the display name of a CurrentDoorState value.
func DoorName(n int) string {
	return bridge.DoorState(n).String()
}

// LockName returns the display name of a LockCurrentState value.
func LockName(n int) string {
	switch n {
	case model.LockUnsecured:
		return "UNSECURED"
	case model.LockSecured:
		return "SECURED"
	case model.LockJammed:
		return "JAMMED"
	}
	return "UNKNOWN"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Door:          DoorName(snap.Door),
		Target:        DoorName(snap.Target),
		Obstructed:    snap.Obstructed,
		Lock:          LockName(snap.Lock),
		LockTarget:    LockName(snap.LockTarget),
		Ready:         snap.Ready,
		Paired:        snap.Paired,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Opened:       snap.Counts.Opened,
			Closed:       snap.Counts.Closed,
			Obstructions: snap.Counts.Obstructions,
			Faults:       snap.Counts.Faults,
		},
		Config: ConfigJSON{
			Driver:     snap.Config.Driver,
			PollMs:     snap.Config.PollMs,
			DebounceMs: snap.Config.DebounceMs,
			TimeoutMs:  snap.Config.TimeoutMs,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
			HAPAddr:    snap.Config.HAPAddr,
		},
	}
	if snap.LastFault != "" {
		inner.LastFault = &FaultJSON{
			Message:   snap.LastFault,
			Timestamp: snap.LastFaultAt.UTC().Format(time.RFC3339),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
