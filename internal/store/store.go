// Package store owns the mutable characteristic values of the accessory.
//
// All writes go through one serialized path: value replacement and observer
// fan-out happen under the same write lock, so observers see every accepted
// write exactly once and in write order. Reads never wait on observers.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/homekit-gate/internal/model"
)

// Store holds characteristic values for one accessory.
type Store struct {
	defs map[model.ID]model.Definition
	now  func() time.Time

	writeMu sync.Mutex // serializes write + notify
	mu      sync.RWMutex
	values  map[model.ID]model.Value
	seq     uint64

	notifier Notifier
}

// New creates a store with every definition set to its initial value.
func New(defs []model.Definition) *Store {
	s := &Store{
		defs:   make(map[model.ID]model.Definition, len(defs)),
		values: make(map[model.ID]model.Value, len(defs)),
		now:    time.Now,
	}
	for _, d := range defs {
		s.defs[d.ID] = d
		s.values[d.ID] = d.Initial
	}
	return s
}

// SetClock replaces the event timestamp source. For tests.
func (s *Store) SetClock(now func() time.Time) {
	s.writeMu.Lock()
	s.now = now
	s.writeMu.Unlock()
}

// Definition returns the static definition of id.
func (s *Store) Definition(id model.ID) (model.Definition, bool) {
	d, ok := s.defs[id]
	return d, ok
}

// Read returns the current value of id.
func (s *Store) Read(id model.ID) (model.Value, error) {
	s.mu.RLock()
	v, ok := s.values[id]
	s.mu.RUnlock()
	if !ok {
		return model.Value{}, fmt.Errorf("%w: %s", model.ErrUnknownCharacteristic, id)
	}
	return v, nil
}

// ReadInt returns the integer value of id, or -1 if id is unknown or not an int.
func (s *Store) ReadInt(id model.ID) int {
	v, err := s.Read(id)
	if err != nil {
		return -1
	}
	n, ok := v.AsInt()
	if !ok {
		return -1
	}
	return n
}

// Snapshot returns a copy of all values.
func (s *Store) Snapshot() map[model.ID]model.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.ID]model.Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// WriteExternal is the controller write path. Characteristics without write
// permission are rejected with model.ErrPermissionDenied.
func (s *Store) WriteExternal(id model.ID, v model.Value) error {
	d, ok := s.defs[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownCharacteristic, id)
	}
	if !d.Perms.Has(model.PermWrite) {
		return fmt.Errorf("%w: %s is read-only", model.ErrPermissionDenied, id)
	}
	return s.write(d, v, OriginExternal)
}

// WriteInternal is the actuation write path. It skips the permission check
// but still enforces the value domain.
func (s *Store) WriteInternal(id model.ID, v model.Value) error {
	d, ok := s.defs[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownCharacteristic, id)
	}
	return s.write(d, v, OriginInternal)
}

func (s *Store) write(d model.Definition, v model.Value, origin Origin) error {
	if err := d.Validate(v); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old := s.values[d.ID]
	s.values[d.ID] = v
	s.seq++
	ev := Event{Seq: s.seq, Time: s.now(), ID: d.ID, Old: old, New: v, Origin: origin}
	s.mu.Unlock()

	s.notifier.notify(ev)
	return nil
}

// ReportFault delivers a fault event for id without changing any value.
func (s *Store) ReportFault(id model.ID, fault error) {
	if fault == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	cur := s.values[id]
	s.seq++
	ev := Event{Seq: s.seq, Time: s.now(), ID: id, Old: cur, New: cur, Origin: OriginInternal, Fault: fault}
	s.mu.Unlock()

	s.notifier.notify(ev)
}

// OnChange registers fn for events on id. The returned func unregisters it.
func (s *Store) OnChange(id model.ID, fn Observer) func() {
	return s.notifier.register(id, fn)
}

// Subscribe registers fn for events on every characteristic.
func (s *Store) Subscribe(fn Observer) func() {
	return s.notifier.register(0, fn)
}
