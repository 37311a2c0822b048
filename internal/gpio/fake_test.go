package gpio

import (
	"errors"
	"testing"
)

func TestFakeDriverPollSensors(t *testing.T) {
	samples := []SensorSnapshot{
		{Valid: true, FullyClosed: true},
		{Valid: true},
		{Valid: true, FullyOpen: true},
	}

	f := NewFakeDriver(samples...)

	for i, want := range samples {
		got, err := f.PollSensors()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %+v, got %+v", i, want, got)
		}
	}

	// Fourth read should repeat last sample
	got, err := f.PollSensors()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.FullyOpen {
		t.Errorf("repeat: expected last sample, got %+v", got)
	}
}

func TestFakeDriverNoSamples(t *testing.T) {
	f := NewFakeDriver()

	_, err := f.PollSensors()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeDriverPollError(t *testing.T) {
	f := NewFakeDriver(SensorSnapshot{Valid: true})
	f.PollError = errors.New("simulated error")

	_, err := f.PollSensors()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeDriverRecordsCommands(t *testing.T) {
	f := NewFakeDriver()

	f.OpenDoor()
	f.StopDoor()
	f.CloseDoor()
	f.SetLock(true)
	f.SetLock(false)

	want := []Command{CmdOpen, CmdStop, CmdClose, CmdLock, CmdUnlock}
	got := f.Commands()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	f.ResetCommands()
	if len(f.Commands()) != 0 {
		t.Error("expected no commands after reset")
	}
}

func TestFakeDriverCommandError(t *testing.T) {
	f := NewFakeDriver()
	f.OpenError = errors.New("relay stuck")

	if err := f.OpenDoor(); err == nil {
		t.Error("expected open error")
	}
	if len(f.Commands()) != 0 {
		t.Errorf("failed command should not be recorded, got %v", f.Commands())
	}
}

func TestFakeDriverScript(t *testing.T) {
	f := NewFakeDriver(SensorSnapshot{Valid: true, FullyClosed: true})
	f.PollSensors()

	f.Script(SensorSnapshot{Valid: true, Obstructed: true})
	got, _ := f.PollSensors()
	if !got.Obstructed {
		t.Errorf("after script: expected obstructed, got %+v", got)
	}
}

func TestFakeDriverClose(t *testing.T) {
	f := NewFakeDriver()

	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
}

func TestFakeDriverImplementsInterfaces(t *testing.T) {
	var _ Driver = NewFakeDriver()
	var _ Locker = NewFakeDriver()
}
