//go:build !linux

package gpio

import "errors"

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(chipName string, pins Pins) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (d *RealDriver) OpenDoor() error  { return errors.New("gpio: not supported") }
func (d *RealDriver) CloseDoor() error { return errors.New("gpio: not supported") }
func (d *RealDriver) StopDoor() error  { return errors.New("gpio: not supported") }

// SetLock is not implemented on non-Linux platforms.
func (d *RealDriver) SetLock(secured bool) error { return ErrLockUnsupported }

// PollSensors is not implemented on non-Linux platforms.
func (d *RealDriver) PollSensors() (SensorSnapshot, error) {
	return SensorSnapshot{}, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
