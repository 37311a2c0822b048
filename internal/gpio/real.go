//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives the gate relays and reads its switches through the
// Linux GPIO character device.
type RealDriver struct {
	chip *gpiocdev.Chip

	openRelay  *gpiocdev.Line
	closeRelay *gpiocdev.Line
	lockRelay  *gpiocdev.Line

	openLimit   *gpiocdev.Line
	closedLimit *gpiocdev.Line
	obstruction *gpiocdev.Line
	fault       *gpiocdev.Line
	lockSensor  *gpiocdev.Line
}

// NewRealDriver requests the configured lines on chipName.
func NewRealDriver(chipName string, pins Pins) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	d := &RealDriver{chip: chip}

	output := func(name string, pin int) (*gpiocdev.Line, error) {
		if pin < 0 {
			return nil, nil
		}
		l, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
		}
		return l, nil
	}
	// Switches pull to ground when closed.
	input := func(name string, pin int) (*gpiocdev.Line, error) {
		if pin < 0 {
			return nil, nil
		}
		l, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
		}
		return l, nil
	}

	steps := []struct {
		dst  **gpiocdev.Line
		name string
		pin  int
		req  func(string, int) (*gpiocdev.Line, error)
	}{
		{&d.openRelay, "open relay", pins.OpenRelay, output},
		{&d.closeRelay, "close relay", pins.CloseRelay, output},
		{&d.lockRelay, "lock relay", pins.LockRelay, output},
		{&d.openLimit, "open limit", pins.OpenLimit, input},
		{&d.closedLimit, "closed limit", pins.ClosedLimit, input},
		{&d.obstruction, "obstruction", pins.Obstruction, input},
		{&d.fault, "fault", pins.Fault, input},
		{&d.lockSensor, "lock sensor", pins.LockSensor, input},
	}
	for _, s := range steps {
		l, err := s.req(s.name, s.pin)
		if err != nil {
			d.Close()
			return nil, err
		}
		*s.dst = l
	}
	if d.openRelay == nil || d.closeRelay == nil {
		d.Close()
		return nil, fmt.Errorf("open and close relay pins are required")
	}
	return d, nil
}

// OpenDoor releases the close relay before energizing the open relay.
func (d *RealDriver) OpenDoor() error {
	if err := d.closeRelay.SetValue(0); err != nil {
		return fmt.Errorf("release close relay: %w", err)
	}
	if err := d.openRelay.SetValue(1); err != nil {
		return fmt.Errorf("energize open relay: %w", err)
	}
	return nil
}

// CloseDoor releases the open relay before energizing the close relay.
func (d *RealDriver) CloseDoor() error {
	if err := d.openRelay.SetValue(0); err != nil {
		return fmt.Errorf("release open relay: %w", err)
	}
	if err := d.closeRelay.SetValue(1); err != nil {
		return fmt.Errorf("energize close relay: %w", err)
	}
	return nil
}

// StopDoor releases both motor relays.
func (d *RealDriver) StopDoor() error {
	err1 := d.openRelay.SetValue(0)
	err2 := d.closeRelay.SetValue(0)
	if err1 != nil {
		return fmt.Errorf("release open relay: %w", err1)
	}
	if err2 != nil {
		return fmt.Errorf("release close relay: %w", err2)
	}
	return nil
}

// SetLock energizes the lock relay to secure the gate.
func (d *RealDriver) SetLock(secured bool) error {
	if d.lockRelay == nil {
		return ErrLockUnsupported
	}
	v := 0
	if secured {
		v = 1
	}
	if err := d.lockRelay.SetValue(v); err != nil {
		return fmt.Errorf("set lock relay: %w", err)
	}
	return nil
}

// PollSensors reads every fitted input.
func (d *RealDriver) PollSensors() (SensorSnapshot, error) {
	read := func(name string, l *gpiocdev.Line) (bool, error) {
		if l == nil {
			return false, nil
		}
		v, err := l.Value()
		if err != nil {
			return false, fmt.Errorf("read %s pin: %w", name, err)
		}
		return v == 1, nil
	}

	var s SensorSnapshot
	var err error
	if s.FullyOpen, err = read("open limit", d.openLimit); err != nil {
		return SensorSnapshot{}, err
	}
	if s.FullyClosed, err = read("closed limit", d.closedLimit); err != nil {
		return SensorSnapshot{}, err
	}
	if s.Obstructed, err = read("obstruction", d.obstruction); err != nil {
		return SensorSnapshot{}, err
	}
	if s.Fault, err = read("fault", d.fault); err != nil {
		return SensorSnapshot{}, err
	}
	if d.lockSensor != nil {
		s.LockKnown = true
		if s.Locked, err = read("lock sensor", d.lockSensor); err != nil {
			return SensorSnapshot{}, err
		}
	}
	s.Valid = true
	return s, nil
}

// Close de-energizes the relays and returns every line to an input with
// pull-down, matching the Pi boot defaults, before releasing the chip.
func (d *RealDriver) Close() error {
	var errs []error

	for _, l := range []*gpiocdev.Line{d.openRelay, d.closeRelay, d.lockRelay} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release relay: %w", err))
		}
	}
	for _, l := range []*gpiocdev.Line{
		d.openRelay, d.closeRelay, d.lockRelay,
		d.openLimit, d.closedLimit, d.obstruction, d.fault, d.lockSensor,
	} {
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
