package gpio

import (
	"errors"
	"sync"
)

// Command is a motor or lock instruction recorded by FakeDriver.
type Command string

const (
	CmdOpen   Command = "OPEN"
	CmdClose  Command = "CLOSE"
	CmdStop   Command = "STOP"
	CmdLock   Command = "LOCK"
	CmdUnlock Command = "UNLOCK"
)

// FakeDriver is a test double that records commands and returns scripted
// sensor snapshots. It is safe for concurrent use.
type FakeDriver struct {
	mu sync.Mutex

	// Samples contains scripted snapshots. Each call to PollSensors consumes
	// the next one; the last is repeated once exhausted.
	samples []SensorSnapshot
	index   int

	commands []Command

	// Errors returned by the matching operation, if set.
	OpenError  error
	CloseError error
	StopError  error
	LockError  error
	PollError  error

	closed bool
}

// NewFakeDriver creates a FakeDriver with the given samples.
func NewFakeDriver(samples ...SensorSnapshot) *FakeDriver {
	return &FakeDriver{samples: samples}
}

func (f *FakeDriver) record(c Command, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.commands = append(f.commands, c)
	return nil
}

func (f *FakeDriver) OpenDoor() error  { return f.record(CmdOpen, f.OpenError) }
func (f *FakeDriver) CloseDoor() error { return f.record(CmdClose, f.CloseError) }
func (f *FakeDriver) StopDoor() error  { return f.record(CmdStop, f.StopError) }

// SetLock records a lock or unlock command.
func (f *FakeDriver) SetLock(secured bool) error {
	if secured {
		return f.record(CmdLock, f.LockError)
	}
	return f.record(CmdUnlock, f.LockError)
}

// PollSensors returns the next scripted snapshot.
func (f *FakeDriver) PollSensors() (SensorSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PollError != nil {
		return SensorSnapshot{}, f.PollError
	}
	if len(f.samples) == 0 {
		return SensorSnapshot{}, errors.New("no samples configured")
	}

	s := f.samples[f.index]
	if f.index < len(f.samples)-1 {
		f.index++
	}
	return s, nil
}

// Script replaces the remaining samples.
func (f *FakeDriver) Script(samples ...SensorSnapshot) {
	f.mu.Lock()
	f.samples = samples
	f.index = 0
	f.mu.Unlock()
}

// Commands returns the commands recorded so far.
func (f *FakeDriver) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}

// ResetCommands clears recorded commands.
func (f *FakeDriver) ResetCommands() {
	f.mu.Lock()
	f.commands = nil
	f.mu.Unlock()
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeDriver) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
