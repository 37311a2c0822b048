package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/homekit-gate/internal/model"
	"github.com/sweeney/homekit-gate/internal/network"
	"github.com/sweeney/homekit-gate/internal/status"
	"github.com/sweeney/homekit-gate/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *store.Store) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Driver:     "gpio",
		PollMs:     100,
		DebounceMs: 50,
		TimeoutMs:  30000,
		Broker:     "tcp://192.168.1.200:1883",
		HTTPAddr:   ":80",
		HAPAddr:    ":51826",
	}
	tr := status.NewTracker(start, cfg)
	st := store.New(model.Definitions(model.DefaultIdentity))
	st.Subscribe(tr.Observe)

	srv := New(":0", tr, st, log.New(io.Discard))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, st
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func put(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) Error {
	t.Helper()
	var e Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, st := newTestServer(t)
	st.WriteInternal(model.CurrentDoorState, model.Int(model.DoorOpen))
	st.WriteInternal(model.TargetDoorState, model.Int(model.DoorOpen))
	tr.SetReady(true)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	sj := getStatus(t, ts.URL)
	if sj.Status.Door != "OPEN" {
		t.Errorf("Door: got %q, want OPEN", sj.Status.Door)
	}
	if sj.Status.Target != "OPEN" {
		t.Errorf("Target: got %q, want OPEN", sj.Status.Target)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Opened != 1 {
		t.Errorf("Counts.Opened: got %d, want 1", sj.Status.Counts.Opened)
	}
	if sj.Status.Config.TimeoutMs != 30000 {
		t.Errorf("Config.TimeoutMs: got %d, want 30000", sj.Status.Config.TimeoutMs)
	}
}

func TestJSONBeforeBaseline(t *testing.T) {
	ts, _, _ := newTestServer(t)

	sj := getStatus(t, ts.URL)
	if sj.Status.Door != "STOPPED" {
		t.Errorf("Door before baseline: got %q, want STOPPED", sj.Status.Door)
	}
	if sj.Status.Lock != "UNKNOWN" {
		t.Errorf("Lock before baseline: got %q, want UNKNOWN", sj.Status.Lock)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false")
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetNetwork(&network.Info{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getStatus(t, ts.URL)
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	ts, _, st := newTestServer(t)
	st.WriteInternal(model.ObstructionDetected, model.Bool(true))

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q, want text/html", path, ct)
		}
		if !strings.Contains(string(body), `class="warn">yes`) {
			t.Errorf("%s: obstruction not rendered", path)
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestListCharacteristics(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/characteristics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var list []CharacteristicJSON
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != len(model.Definitions(model.DefaultIdentity)) {
		t.Fatalf("got %d characteristics", len(list))
	}
	if list[0].Name != "CurrentDoorState" {
		t.Errorf("first: got %q, want CurrentDoorState", list[0].Name)
	}
	for _, c := range list {
		if c.Name == "Identify" && c.Value != nil {
			t.Errorf("Identify value should be hidden, got %v", c.Value)
		}
	}
}

func TestGetCharacteristic(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/characteristics/Manufacturer")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var c CharacteristicJSON
	json.NewDecoder(resp.Body).Decode(&c)
	if c.Value != "Becker Software" {
		t.Errorf("Manufacturer: got %v", c.Value)
	}
	if c.Type != "20" {
		t.Errorf("Type: got %q, want 20", c.Type)
	}
}

func TestGetUnknownCharacteristic(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/characteristics/Brightness")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != ErrCodeNotFound {
		t.Errorf("code: got %q", e.Code)
	}
}

func TestPutCharacteristic(t *testing.T) {
	ts, _, st := newTestServer(t)

	var mu sync.Mutex
	var events []store.Event
	st.Subscribe(func(ev store.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	resp := put(t, ts.URL+"/api/characteristics/TargetDoorState", `{"value":0}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	if got := st.ReadInt(model.TargetDoorState); got != model.DoorOpen {
		t.Errorf("TargetDoorState: got %d, want %d", got, model.DoorOpen)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Origin != store.OriginExternal {
		t.Errorf("events: %+v", events)
	}
}

func TestPutCharacteristicErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"read only", "CurrentDoorState", `{"value":0}`, http.StatusForbidden, ErrCodeForbidden},
		{"out of domain", "TargetDoorState", `{"value":3}`, http.StatusUnprocessableEntity, ErrCodeInvalid},
		{"wrong kind", "TargetDoorState", `{"value":"open"}`, http.StatusUnprocessableEntity, ErrCodeInvalid},
		{"fractional", "TargetDoorState", `{"value":0.5}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad json", "TargetDoorState", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown", "Hue", `{"value":1}`, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, st := newTestServer(t)
			resp := put(t, ts.URL+"/api/characteristics/"+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.status)
			}
			if e := decodeError(t, resp); e.Code != tt.code {
				t.Errorf("code: got %q, want %q", e.Code, tt.code)
			}
			if got := st.ReadInt(model.TargetDoorState); got != model.DoorClosed {
				t.Errorf("TargetDoorState changed to %d", got)
			}
		})
	}
}

func TestDoorTarget(t *testing.T) {
	ts, tr, st := newTestServer(t)

	resp := put(t, ts.URL+"/api/door/target", `{"target":"Open"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	if got := st.ReadInt(model.TargetDoorState); got != model.DoorOpen {
		t.Errorf("TargetDoorState: got %d", got)
	}
	if got := tr.Snapshot().Target; got != model.DoorOpen {
		t.Errorf("tracker target: got %d", got)
	}

	resp = put(t, ts.URL+"/api/door/target", `{"target":"sideways"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422", resp.StatusCode)
	}
}

func TestLockTarget(t *testing.T) {
	ts, _, st := newTestServer(t)

	resp := put(t, ts.URL+"/api/lock/target", `{"target":"secured"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	if got := st.ReadInt(model.LockTargetState); got != model.LockSecured {
		t.Errorf("LockTargetState: got %d", got)
	}
}
