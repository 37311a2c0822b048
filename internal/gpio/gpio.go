// Package gpio provides the gate's actuation boundary with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// ErrLockUnsupported is returned by SetLock when no lock relay is fitted.
var ErrLockUnsupported = errors.New("no lock relay fitted")

// SensorSnapshot is one reading of the gate's sensors, in logical form.
type SensorSnapshot struct {
	// Valid is false until the driver has real sensor data.
	Valid bool

	FullyOpen   bool // open limit switch closed
	FullyClosed bool // closed limit switch closed
	Obstructed  bool // safety beam broken
	Fault       bool // motor controller reports a fault

	// LockKnown is false when no lock sensor is fitted.
	LockKnown bool
	Locked    bool
}

// Driver moves the gate and reads its sensors.
type Driver interface {
	// OpenDoor starts the motor in the opening direction.
	OpenDoor() error
	// CloseDoor starts the motor in the closing direction.
	CloseDoor() error
	// StopDoor stops the motor.
	StopDoor() error
	// PollSensors returns the current sensor state.
	PollSensors() (SensorSnapshot, error)
	// Close releases hardware resources.
	Close() error
}

// Locker is implemented by drivers that can operate the lock relay.
type Locker interface {
	SetLock(secured bool) error
}

// Pins holds BCM pin numbers. A negative pin is not fitted.
type Pins struct {
	OpenRelay   int
	CloseRelay  int
	OpenLimit   int
	ClosedLimit int
	Obstruction int
	Fault       int
	LockRelay   int
	LockSensor  int
}

// DefaultPins is the wiring of the reference relay board.
var DefaultPins = Pins{
	OpenRelay:   17,
	CloseRelay:  27,
	OpenLimit:   5,
	ClosedLimit: 6,
	Obstruction: 13,
	Fault:       -1,
	LockRelay:   22,
	LockSensor:  -1,
}
