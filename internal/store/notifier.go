package store

import (
	"sync"
	"time"

	"github.com/sweeney/homekit-gate/internal/model"
)

// Origin tells observers which write path produced an event.
type Origin int

const (
	// OriginExternal is a write from a controller (HomeKit, HTTP API).
	OriginExternal Origin = iota
	// OriginInternal is a write from the actuation bridge.
	OriginInternal
)

func (o Origin) String() string {
	if o == OriginInternal {
		return "internal"
	}
	return "external"
}

// Event is delivered to observers for every accepted write and every
// reported fault. For a fault, Old and New are both the current value.
type Event struct {
	Seq    uint64
	Time   time.Time
	ID     model.ID
	Old    model.Value
	New    model.Value
	Origin Origin
	Fault  error
}

// Changed reports whether the write replaced the value with a different one.
func (e Event) Changed() bool {
	return e.Fault == nil && !e.Old.Equal(e.New)
}

// IsFault reports whether the event carries a fault rather than a write.
func (e Event) IsFault() bool {
	return e.Fault != nil
}

// Observer receives events synchronously. It must not call the store's
// write methods; hand work to another goroutine instead.
type Observer func(Event)

type registration struct {
	key uint64
	id  model.ID // 0 = all characteristics
	fn  Observer
}

// Notifier fans events out to registered observers in registration order.
type Notifier struct {
	mu   sync.Mutex
	next uint64
	regs []registration
}

func (n *Notifier) register(id model.ID, fn Observer) func() {
	n.mu.Lock()
	n.next++
	key := n.next
	n.regs = append(n.regs, registration{key: key, id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, r := range n.regs {
				if r.key == key {
					n.regs = append(n.regs[:i:i], n.regs[i+1:]...)
					return
				}
			}
		})
	}
}

// notify delivers ev to every observer registered for ev.ID or for all ids.
// The observer list is copied first so observers may cancel themselves.
func (n *Notifier) notify(ev Event) {
	n.mu.Lock()
	regs := make([]registration, len(n.regs))
	copy(regs, n.regs)
	n.mu.Unlock()

	for _, r := range regs {
		if r.id == 0 || r.id == ev.ID {
			r.fn(ev)
		}
	}
}
