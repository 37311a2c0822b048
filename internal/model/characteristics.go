package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is returned for a value outside a characteristic's domain.
	ErrInvalidValue = errors.New("invalid value")
	// ErrPermissionDenied is returned for an external write to a characteristic
	// that is not writable.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnknownCharacteristic is returned for an ID the accessory does not expose.
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
)

// Perm is a set of characteristic permissions.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermEvents
)

// Has reports whether all bits of q are set in p.
func (p Perm) Has(q Perm) bool { return p&q == q }

// MaxStringLen is the HomeKit default maximum length of a string value.
const MaxStringLen = 64

// Definition is the static description of one characteristic.
type Definition struct {
	ID      ID
	Type    string // HomeKit short UUID
	Kind    Kind
	Perms   Perm
	Valid   []int // allowed integer values; empty means any
	Initial Value
}

// Validate checks v against the definition's kind and domain.
func (d Definition) Validate(v Value) error {
	if v.Kind() != d.Kind {
		return fmt.Errorf("%w: %s wants %s, got %s", ErrInvalidValue, d.ID, d.Kind, v.Kind())
	}
	switch d.Kind {
	case KindInt:
		if len(d.Valid) == 0 {
			return nil
		}
		n, _ := v.AsInt()
		for _, ok := range d.Valid {
			if n == ok {
				return nil
			}
		}
		return fmt.Errorf("%w: %s does not accept %d", ErrInvalidValue, d.ID, n)
	case KindString:
		if s, _ := v.AsString(); len(s) > MaxStringLen {
			return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidValue, d.ID, MaxStringLen)
		}
	}
	return nil
}

// Identity is the accessory information shown to controllers.
type Identity struct {
	Name         string
	Manufacturer string
	SerialNumber string
	Model        string
	Firmware     string
}

// DefaultIdentity matches the gate's original firmware.
var DefaultIdentity = Identity{
	Name:         "Internal Gate",
	Manufacturer: "Becker Software",
	SerialNumber: "00",
	Model:        "ESP8266",
	Firmware:     "0.1.0",
}

// Definitions returns the characteristic set of the gate accessory with
// identity strings as initial values.
func Definitions(id Identity) []Definition {
	info := func(cid ID, typ, val string) Definition {
		return Definition{ID: cid, Type: typ, Kind: KindString, Perms: PermRead, Initial: String(val)}
	}
	return []Definition{
		{
			ID: CurrentDoorState, Type: "E", Kind: KindInt, Perms: PermRead | PermEvents,
			Valid:   []int{DoorOpen, DoorClosed, DoorOpening, DoorClosing, DoorStopped},
			Initial: Int(DoorStopped),
		},
		{
			ID: TargetDoorState, Type: "32", Kind: KindInt, Perms: PermRead | PermWrite | PermEvents,
			Valid:   []int{DoorOpen, DoorClosed},
			Initial: Int(DoorClosed),
		},
		{
			ID: ObstructionDetected, Type: "24", Kind: KindBool, Perms: PermRead | PermEvents,
			Initial: Bool(false),
		},
		{
			ID: LockCurrentState, Type: "1D", Kind: KindInt, Perms: PermRead | PermEvents,
			Valid:   []int{LockUnsecured, LockSecured, LockJammed, LockUnknown},
			Initial: Int(LockUnknown),
		},
		{
			ID: LockTargetState, Type: "1E", Kind: KindInt, Perms: PermRead | PermWrite | PermEvents,
			Valid:   []int{LockUnsecured, LockSecured},
			Initial: Int(LockUnsecured),
		},
		info(Name, "23", id.Name),
		info(Manufacturer, "20", id.Manufacturer),
		info(SerialNumber, "30", id.SerialNumber),
		info(Model, "21", id.Model),
		info(FirmwareRevision, "52", id.Firmware),
		{
			ID: Identify, Type: "14", Kind: KindBool, Perms: PermWrite,
			Initial: Bool(false),
		},
	}
}
