// Package model describes the gate accessory: its characteristics, their
// value domains and permissions, and the fixed accessory/service tree.
// This package has NO external dependencies and holds no mutable state.
package model

import (
	"fmt"
	"strconv"
)

// ID identifies a characteristic exposed by the accessory.
type ID int

const (
	CurrentDoorState ID = iota + 1
	TargetDoorState
	ObstructionDetected
	LockCurrentState
	LockTargetState
	Name
	Manufacturer
	SerialNumber
	Model
	FirmwareRevision
	Identify
)

var idNames = map[ID]string{
	CurrentDoorState:    "CurrentDoorState",
	TargetDoorState:     "TargetDoorState",
	ObstructionDetected: "ObstructionDetected",
	LockCurrentState:    "LockCurrentState",
	LockTargetState:     "LockTargetState",
	Name:                "Name",
	Manufacturer:        "Manufacturer",
	SerialNumber:        "SerialNumber",
	Model:               "Model",
	FirmwareRevision:    "FirmwareRevision",
	Identify:            "Identify",
}

func (id ID) String() string {
	if s, ok := idNames[id]; ok {
		return s
	}
	return "ID(" + strconv.Itoa(int(id)) + ")"
}

// ParseID returns the ID with the given name.
func ParseID(s string) (ID, bool) {
	for id, name := range idNames {
		if name == s {
			return id, true
		}
	}
	return 0, false
}

// Door states, numbered as HomeKit numbers CurrentDoorState.
const (
	DoorOpen    = 0
	DoorClosed  = 1
	DoorOpening = 2
	DoorClosing = 3
	DoorStopped = 4
)

// Lock states, numbered as HomeKit numbers LockCurrentState.
const (
	LockUnsecured = 0
	LockSecured   = 1
	LockJammed    = 2
	LockUnknown   = 3
)

// Kind is the type tag of a Value.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	}
	return "unknown"
}

// Value is a characteristic value: an integer enum, a boolean or a string.
// The zero Value is Int(0).
type Value struct {
	kind Kind
	i    int
	b    bool
	s    string
}

func Int(v int) Value       { return Value{kind: KindInt, i: v} }
func Bool(v bool) Value     { return Value{kind: KindBool, b: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// AsInt returns the integer payload and whether v holds one.
func (v Value) AsInt() (int, bool) { return v.i, v.kind == KindInt }

// AsBool returns the boolean payload and whether v holds one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string payload and whether v holds one.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Equal reports whether both values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

// Interface returns the payload as int, bool or string.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		return v.s
	}
	return v.i
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return strconv.Quote(v.s)
	}
	return strconv.Itoa(v.i)
}

// FromInterface converts a decoded JSON value (float64, bool, string, int)
// into a Value.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case int:
		return Int(t), nil
	case float64:
		if t != float64(int(t)) {
			return Value{}, fmt.Errorf("non-integer number %v", t)
		}
		return Int(int(t)), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", x)
}
