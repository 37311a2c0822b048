package mqtt

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/sweeney/homekit-gate/internal/store"
)

// Forwarder relays store events to a Publisher. Observe runs inside the
// store's write path, so it only queues; Run does the publishing.
type Forwarder struct {
	pub     Publisher
	log     *log.Logger
	events  chan store.Event
	dropped atomic.Int64
}

// NewForwarder creates a Forwarder with room for queue pending events.
func NewForwarder(pub Publisher, queue int, logger *log.Logger) *Forwarder {
	if queue < 1 {
		queue = 1
	}
	return &Forwarder{
		pub:    pub,
		log:    logger,
		events: make(chan store.Event, queue),
	}
}

// Observe is a store.Observer. Writes that did not change the value are
// not forwarded.
func (f *Forwarder) Observe(ev store.Event) {
	if !ev.Changed() && !ev.IsFault() {
		return
	}
	select {
	case f.events <- ev:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.log.Warn("event queue full, dropping", "dropped", n)
		}
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (f *Forwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// already queued.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-f.events:
					f.publish(ev)
				default:
					return nil
				}
			}
		case ev := <-f.events:
			f.publish(ev)
		}
	}
}

func (f *Forwarder) publish(ev store.Event) {
	if err := f.pub.Publish(ev); err != nil {
		f.log.Error("mqtt publish failed", "id", ev.ID, "err", err)
	}
}
