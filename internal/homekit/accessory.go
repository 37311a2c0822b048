// Package homekit exposes the characteristic store as a HAP garage door
// opener accessory. Controller writes enter the store through the external
// write path; store events are mirrored back into the hap characteristics so
// controllers receive notifications.
package homekit

import (
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/charmbracelet/log"

	"github.com/sweeney/homekit-gate/internal/model"
	"github.com/sweeney/homekit-gate/internal/store"
)

// Accessory binds a hap garage door opener to a store.
type Accessory struct {
	*accessory.GarageDoorOpener

	LockCurrentState *characteristic.LockCurrentState
	LockTargetState  *characteristic.LockTargetState

	store  *store.Store
	log    *log.Logger
	cancel func()
}

// NewAccessory builds the accessory tree from the store's current values and
// starts mirroring store events into it. Call Close to stop mirroring.
func NewAccessory(st *store.Store, logger *log.Logger) *Accessory {
	str := func(id model.ID) string {
		v, _ := st.Read(id)
		s, _ := v.AsString()
		return s
	}
	info := accessory.Info{
		Name:         str(model.Name),
		SerialNumber: str(model.SerialNumber),
		Manufacturer: str(model.Manufacturer),
		Model:        str(model.Model),
		Firmware:     str(model.FirmwareRevision),
	}

	a := &Accessory{
		GarageDoorOpener: accessory.NewGarageDoorOpener(info),
		LockCurrentState: characteristic.NewLockCurrentState(),
		LockTargetState:  characteristic.NewLockTargetState(),
		store:            st,
		log:              logger,
	}
	a.GarageDoorOpener.GarageDoorOpener.AddC(a.LockCurrentState.C)
	a.GarageDoorOpener.GarageDoorOpener.AddC(a.LockTargetState.C)

	for id, v := range st.Snapshot() {
		a.set(id, v)
	}

	svc := a.GarageDoorOpener.GarageDoorOpener
	svc.TargetDoorState.OnValueRemoteUpdate(func(v int) {
		a.remoteWrite(model.TargetDoorState, model.Int(v))
	})
	a.LockTargetState.OnValueRemoteUpdate(func(v int) {
		a.remoteWrite(model.LockTargetState, model.Int(v))
	})
	a.A.Info.Identify.OnValueRemoteUpdate(func(v bool) {
		a.remoteWrite(model.Identify, model.Bool(v))
	})

	a.cancel = st.Subscribe(a.mirror)
	return a
}

// Close stops mirroring store events.
func (a *Accessory) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}

// remoteWrite forwards a controller write to the store. A rejected write
// restores the hap value from the store.
func (a *Accessory) remoteWrite(id model.ID, v model.Value) {
	if err := a.store.WriteExternal(id, v); err != nil {
		a.log.Warn("homekit write rejected", "id", id, "value", v, "err", err)
		if cur, rerr := a.store.Read(id); rerr == nil {
			a.set(id, cur)
		}
		return
	}
	a.log.Info("homekit write", "id", id, "value", v)
}

func (a *Accessory) mirror(ev store.Event) {
	if ev.IsFault() {
		return
	}
	a.set(ev.ID, ev.New)
}

func (a *Accessory) set(id model.ID, v model.Value) {
	svc := a.GarageDoorOpener.GarageDoorOpener
	n, _ := v.AsInt()
	switch id {
	case model.CurrentDoorState:
		svc.CurrentDoorState.SetValue(n)
	case model.TargetDoorState:
		svc.TargetDoorState.SetValue(n)
	case model.ObstructionDetected:
		b, _ := v.AsBool()
		svc.ObstructionDetected.SetValue(b)
	case model.LockCurrentState:
		a.LockCurrentState.SetValue(n)
	case model.LockTargetState:
		a.LockTargetState.SetValue(n)
	}
}
