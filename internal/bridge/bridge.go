// Package bridge turns target-state writes into driver commands and reflects
// sensor readings back into the characteristic store.
//
// The bridge is the only writer of CurrentDoorState, ObstructionDetected and
// LockCurrentState. Store observers only record the latest request and wake
// the Run loop; every driver call and store write happens on that loop.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/homekit-gate/internal/gpio"
	"github.com/sweeney/homekit-gate/internal/model"
	"github.com/sweeney/homekit-gate/internal/store"
)

// Config tunes the bridge.
type Config struct {
	OperationTimeout time.Duration
	LockTimeout      time.Duration
	Debounce         time.Duration
}

// DefaultConfig matches the gate's travel time.
var DefaultConfig = Config{
	OperationTimeout: 30 * time.Second,
	LockTimeout:      5 * time.Second,
	Debounce:         50 * time.Millisecond,
}

// Bridge connects the store to a hardware driver.
type Bridge struct {
	store  *store.Store
	driver gpio.Driver
	locker gpio.Locker
	log    *log.Logger
	now    func() time.Time
	cfg    Config

	door    *Door
	sensors debouncer

	lock       lockWait
	lockSensed bool
	lockTarget int

	pollFailures int
	ready        atomic.Bool

	mu          sync.Mutex
	pendingDoor *DoorState
	pendingLock *int
	wake        chan struct{}

	detach []func()
}

type lockWait struct {
	active bool
	target int
	since  time.Time
}

// New creates a bridge and registers it as an observer of the target
// characteristics.
func New(st *store.Store, drv gpio.Driver, cfg Config, logger *log.Logger) *Bridge {
	b := &Bridge{
		store:   st,
		driver:  drv,
		log:     logger,
		now:     time.Now,
		cfg:     cfg,
		door:    NewDoor(cfg.OperationTimeout),
		sensors: debouncer{hold: cfg.Debounce},
		wake:    make(chan struct{}, 1),
	}
	b.lockTarget = st.ReadInt(model.LockTargetState)
	if l, ok := drv.(gpio.Locker); ok {
		b.locker = l
	}
	b.detach = append(b.detach,
		st.OnChange(model.TargetDoorState, b.onDoorTarget),
		st.OnChange(model.LockTargetState, b.onLockTarget),
	)
	return b
}

// SetClock replaces the time source. For tests.
func (b *Bridge) SetClock(now func() time.Time) {
	b.now = now
}

// Detach unregisters the bridge from the store.
func (b *Bridge) Detach() {
	for _, f := range b.detach {
		f()
	}
}

// Ready reports whether the first valid sensor snapshot has been seen.
// Safe to call from any goroutine.
func (b *Bridge) Ready() bool {
	return b.ready.Load()
}

// DoorState returns the state machine's current state. Only safe to call
// from the goroutine running Run, or when Run is not running.
func (b *Bridge) DoorState() DoorState {
	return b.door.State()
}

func (b *Bridge) onDoorTarget(ev store.Event) {
	if ev.Origin != store.OriginExternal || ev.IsFault() {
		return
	}
	n, _ := ev.New.AsInt()
	target := DoorState(n)

	b.mu.Lock()
	if b.pendingDoor != nil && *b.pendingDoor != target {
		b.log.Debug("door request superseded", "old", *b.pendingDoor, "new", target)
	}
	b.pendingDoor = &target
	b.mu.Unlock()
	b.signal()
}

func (b *Bridge) onLockTarget(ev store.Event) {
	if ev.Origin != store.OriginExternal || ev.IsFault() {
		return
	}
	n, _ := ev.New.AsInt()

	b.mu.Lock()
	b.pendingLock = &n
	b.mu.Unlock()
	b.signal()
}

func (b *Bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run polls sensors on every tick and handles target writes as they
// arrive. It returns when ctx is cancelled, stopping the motor first if the
// door is moving.
func (b *Bridge) Run(ctx context.Context, tick <-chan time.Time) error {
	b.poll()
	for {
		select {
		case <-ctx.Done():
			if b.door.State().Moving() {
				b.log.Warn("stopping motor on shutdown", "state", b.door.State())
				if err := b.driver.StopDoor(); err != nil {
					b.log.Error("stop on shutdown failed", "err", err)
				}
			}
			return nil
		case <-b.wake:
			b.handleRequests()
		case <-tick:
			b.poll()
		}
	}
}

func (b *Bridge) handleRequests() {
	b.mu.Lock()
	door, lock := b.pendingDoor, b.pendingLock
	b.pendingDoor, b.pendingLock = nil, nil
	b.mu.Unlock()

	now := b.now()
	if door != nil {
		b.requestDoor(*door, now)
	}
	if lock != nil {
		b.requestLock(*lock, now)
	}
}

func (b *Bridge) requestDoor(target DoorState, now time.Time) {
	step, err := b.door.Request(target, now)
	if err != nil {
		b.log.Warn("door request refused", "target", target, "err", err)
		b.store.ReportFault(model.CurrentDoorState, err)
		b.writeInt(model.TargetDoorState, int(b.door.Target()))
		return
	}
	if len(step.Commands) == 0 {
		b.log.Info("door already at or moving toward target", "target", target, "state", b.door.State())
		return
	}
	b.log.Info("door request", "target", target, "commands", step.Commands)
	b.apply(step)
}

func (b *Bridge) poll() {
	now := b.now()
	snap, err := b.driver.PollSensors()
	if err != nil {
		b.pollFailures++
		if b.pollFailures == 1 || b.pollFailures%100 == 0 {
			b.log.Warn("sensor read failed", "failures", b.pollFailures, "err", err)
		}
	} else {
		if b.pollFailures > 0 {
			b.log.Info("sensor read recovered", "failures", b.pollFailures)
			b.pollFailures = 0
		}
		snap = b.sensors.filter(snap, now)
		b.apply(b.door.Sense(snap, now))
		b.senseLock(snap)
		if b.door.Baselined() && !b.ready.Load() {
			b.ready.Store(true)
			b.log.Info("sensors baselined", "state", b.door.State())
		}
	}
	b.apply(b.door.Check(now))
	b.checkLock(now)
}

// apply executes step's commands and writes the resulting state.
func (b *Bridge) apply(step Step) {
	var faults []error
	if step.Fault != nil {
		faults = append(faults, step.Fault)
	}

	for _, c := range step.Commands {
		err := b.exec(c)
		if err == nil {
			continue
		}
		b.log.Error("driver command failed", "cmd", c, "err", err)
		failed := b.door.Fail(err)
		if c != gpio.CmdStop {
			if err := b.driver.StopDoor(); err != nil {
				b.log.Error("stop after failed command", "err", err)
			}
		}
		faults = append(faults, failed.Fault)
		break
	}

	b.writeInt(model.CurrentDoorState, int(b.door.State()))
	b.writeBool(model.ObstructionDetected, b.door.Obstructed())
	if step.SyncTarget {
		b.writeInt(model.TargetDoorState, int(b.door.Target()))
	}

	for _, f := range faults {
		b.log.Warn("door fault", "state", b.door.State(), "err", f)
		b.store.ReportFault(model.CurrentDoorState, f)
	}
}

func (b *Bridge) exec(c gpio.Command) error {
	switch c {
	case gpio.CmdOpen:
		return b.driver.OpenDoor()
	case gpio.CmdClose:
		return b.driver.CloseDoor()
	case gpio.CmdStop:
		return b.driver.StopDoor()
	}
	return fmt.Errorf("unknown door command %q", c)
}

func (b *Bridge) requestLock(target int, now time.Time) {
	if b.locker == nil {
		b.refuseLock(target, ErrLockUnsupported)
		return
	}
	if b.lock.active && b.lock.target == target {
		return
	}
	if !b.lock.active && b.store.ReadInt(model.LockCurrentState) == target {
		b.log.Info("lock already in target state", "target", target)
		b.lockTarget = target
		return
	}

	if err := b.locker.SetLock(target == model.LockSecured); err != nil {
		if errors.Is(err, gpio.ErrLockUnsupported) {
			b.refuseLock(target, fmt.Errorf("%w: %v", ErrLockUnsupported, err))
			return
		}
		b.lock.active = false
		fault := fmt.Errorf("%w: %v", ErrActuationFault, err)
		b.log.Error("lock command failed", "target", target, "err", err)
		b.writeInt(model.LockCurrentState, model.LockJammed)
		b.store.ReportFault(model.LockCurrentState, fault)
		return
	}
	b.log.Info("lock request", "target", target)
	b.lockTarget = target

	if !b.lockSensed {
		// No lock sensor: the relay is all we know.
		b.writeInt(model.LockCurrentState, target)
		return
	}
	b.lock = lockWait{active: true, target: target, since: now}
}

// refuseLock reports a lock request that was never sent to the hardware and
// puts LockTargetState back to the last accepted target.
func (b *Bridge) refuseLock(target int, err error) {
	b.log.Warn("lock request refused", "target", target, "err", err)
	b.store.ReportFault(model.LockCurrentState, err)
	b.writeInt(model.LockTargetState, b.lockTarget)
}

func (b *Bridge) senseLock(s gpio.SensorSnapshot) {
	if !s.Valid || !s.LockKnown {
		return
	}
	b.lockSensed = true

	sensed := model.LockUnsecured
	if s.Locked {
		sensed = model.LockSecured
	}
	if b.lock.active {
		if sensed != b.lock.target {
			return
		}
		b.lock.active = false
	}
	if b.store.ReadInt(model.LockCurrentState) != sensed {
		b.writeInt(model.LockCurrentState, sensed)
		b.writeInt(model.LockTargetState, sensed)
		b.lockTarget = sensed
	}
}

func (b *Bridge) checkLock(now time.Time) {
	if !b.lock.active || b.cfg.LockTimeout <= 0 {
		return
	}
	if now.Sub(b.lock.since) < b.cfg.LockTimeout {
		return
	}
	b.lock.active = false
	fault := fmt.Errorf("%w: lock did not reach target within %v", ErrActuationTimeout, b.cfg.LockTimeout)
	b.log.Warn("lock fault", "err", fault)
	b.writeInt(model.LockCurrentState, model.LockJammed)
	b.store.ReportFault(model.LockCurrentState, fault)
}

func (b *Bridge) writeInt(id model.ID, v int) {
	old := b.store.ReadInt(id)
	if old == v {
		return
	}
	if err := b.store.WriteInternal(id, model.Int(v)); err != nil {
		b.log.Error("store write failed", "id", id, "value", v, "err", err)
		return
	}
	if id == model.CurrentDoorState {
		b.log.Info("door state", "from", DoorState(old), "to", DoorState(v))
	}
}

func (b *Bridge) writeBool(id model.ID, v bool) {
	cur, err := b.store.Read(id)
	if err != nil {
		b.log.Error("store read failed", "id", id, "err", err)
		return
	}
	if old, _ := cur.AsBool(); old == v {
		return
	}
	if err := b.store.WriteInternal(id, model.Bool(v)); err != nil {
		b.log.Error("store write failed", "id", id, "value", v, "err", err)
	}
}
