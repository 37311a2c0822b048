package bridge

import (
	"fmt"
	"time"

	"github.com/sweeney/homekit-gate/internal/gpio"
	"github.com/sweeney/homekit-gate/internal/model"
)

// DoorState is the explicit state of the door, numbered as CurrentDoorState.
type DoorState int

const (
	Open    DoorState = model.DoorOpen
	Closed  DoorState = model.DoorClosed
	Opening DoorState = model.DoorOpening
	Closing DoorState = model.DoorClosing
	Stopped DoorState = model.DoorStopped
)

func (s DoorState) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	case Opening:
		return "OPENING"
	case Closing:
		return "CLOSING"
	case Stopped:
		return "STOPPED"
	}
	return fmt.Sprintf("DoorState(%d)", int(s))
}

// Moving reports whether the door is between terminal positions under way.
func (s DoorState) Moving() bool {
	return s == Opening || s == Closing
}

// Step is what the bridge must do after a door state machine call.
type Step struct {
	// Commands to send to the driver, in order.
	Commands []gpio.Command
	// Fault to report through the notifier.
	Fault error
	// SyncTarget is set when the door settled somewhere nobody asked for;
	// TargetDoorState should follow it.
	SyncTarget bool
}

// Door is the door state machine. It has no I/O and takes time as a
// parameter, so it can be driven entirely from tests.
type Door struct {
	timeout time.Duration

	state       DoorState
	target      DoorState // Open or Closed
	movingSince time.Time
	obstructed  bool
	hwFault     bool
	baselined   bool
}

// NewDoor creates a door in the Stopped state. Motion that has not reached
// a limit switch within timeout is stopped with ErrActuationTimeout.
func NewDoor(timeout time.Duration) *Door {
	return &Door{
		timeout: timeout,
		state:   Stopped,
		target:  Closed,
	}
}

func (d *Door) State() DoorState  { return d.state }
func (d *Door) Target() DoorState { return d.target }
func (d *Door) Obstructed() bool  { return d.obstructed }
func (d *Door) Baselined() bool   { return d.baselined }

// Request handles a TargetDoorState write. A target the door is already at
// or moving toward produces no commands. Motion in the other direction is
// stopped before reversing.
func (d *Door) Request(target DoorState, now time.Time) (Step, error) {
	if target != Open && target != Closed {
		return Step{}, fmt.Errorf("%w: target %s", model.ErrInvalidValue, target)
	}
	if d.obstructed {
		return Step{}, ErrObstructed
	}
	if d.hwFault {
		return Step{}, fmt.Errorf("%w: controller fault still active", ErrActuationFault)
	}

	d.target = target
	if target == Open && (d.state == Open || d.state == Opening) {
		return Step{}, nil
	}
	if target == Closed && (d.state == Closed || d.state == Closing) {
		return Step{}, nil
	}

	var step Step
	if d.state.Moving() {
		step.Commands = append(step.Commands, gpio.CmdStop)
	}
	if target == Open {
		step.Commands = append(step.Commands, gpio.CmdOpen)
		d.state = Opening
	} else {
		step.Commands = append(step.Commands, gpio.CmdClose)
		d.state = Closing
	}
	d.movingSince = now
	return step, nil
}

// Sense advances the machine from a sensor snapshot.
func (d *Door) Sense(s gpio.SensorSnapshot, now time.Time) Step {
	if !s.Valid {
		return Step{}
	}

	if !d.baselined {
		d.baselined = true
		d.obstructed = s.Obstructed
		d.hwFault = s.Fault
		switch {
		case s.FullyOpen:
			d.state, d.target = Open, Open
		case s.FullyClosed:
			d.state, d.target = Closed, Closed
		default:
			d.state = Stopped
			return Step{}
		}
		return Step{SyncTarget: true}
	}

	var step Step

	if s.Fault != d.hwFault {
		d.hwFault = s.Fault
		if s.Fault {
			step = d.halt(fmt.Errorf("%w: controller reported fault", ErrActuationFault))
		}
	}
	if d.hwFault {
		d.obstructed = s.Obstructed
		return step
	}

	if s.Obstructed {
		if !d.obstructed {
			d.obstructed = true
			if d.state.Moving() {
				step = d.halt(ErrObstructed)
			}
		}
		return step
	}
	d.obstructed = false

	switch d.state {
	case Opening:
		if s.FullyOpen {
			d.state = Open
		}
	case Closing:
		if s.FullyClosed {
			d.state = Closed
		}
	case Open:
		// Moved by hand or by a wall button: track it like a commanded
		// move so a stuck door still times out.
		if !s.FullyOpen {
			d.state = Closing
			d.target = Closed
			d.movingSince = now
			step.SyncTarget = true
		}
	case Closed:
		if !s.FullyClosed {
			d.state = Opening
			d.target = Open
			d.movingSince = now
			step.SyncTarget = true
		}
	case Stopped:
		if s.FullyOpen {
			d.state = Open
			step.SyncTarget = d.target != Open
			d.target = Open
		} else if s.FullyClosed {
			d.state = Closed
			step.SyncTarget = d.target != Closed
			d.target = Closed
		}
	}
	return step
}

// Check stops motion that has run longer than the timeout.
func (d *Door) Check(now time.Time) Step {
	if !d.state.Moving() || d.timeout <= 0 {
		return Step{}
	}
	if now.Sub(d.movingSince) < d.timeout {
		return Step{}
	}
	return d.halt(fmt.Errorf("%w: still %s after %v", ErrActuationTimeout, d.state, d.timeout))
}

// Fail records a driver error while executing a command.
func (d *Door) Fail(err error) Step {
	return d.halt(fmt.Errorf("%w: %v", ErrActuationFault, err))
}

func (d *Door) halt(fault error) Step {
	d.state = Stopped
	return Step{Commands: []gpio.Command{gpio.CmdStop}, Fault: fault}
}
