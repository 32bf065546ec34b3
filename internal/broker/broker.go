// Package broker provides the in-process signal that connects committed
// transactions to live event subscribers. The broker stores no events;
// subscribers re-read the store from their cursor on every wake, so a
// coalesced or superfluous wake is harmless.
package broker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type Broker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// Subscription is the per-connection state of one event tailer: the next
// revision to deliver and a single-slot wake channel. The cursor is
// advanced by the subscriber loop only.
type Subscription struct {
	id   uuid.UUID
	next atomic.Uint64
	wake chan struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uuid.UUID]*Subscription)}
}

// Subscribe registers a subscriber whose next expected revision is from.
func (b *Broker) Subscribe(from uint64) *Subscription {
	s := &Subscription{
		id:   uuid.New(),
		wake: make(chan struct{}, 1),
	}
	s.next.Store(from)
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}

// Unsubscribe removes the subscriber. Safe to call more than once.
func (b *Broker) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s.id)
	b.mu.Unlock()
}

// Notify wakes every subscriber whose cursor is at or below revision.
// The send is non-blocking: a subscriber that already has a pending wake
// keeps exactly one, which is enough because it drains all events past
// its cursor on the next pass.
func (b *Broker) Notify(revision uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.next.Load() <= revision {
			select {
			case s.wake <- struct{}{}:
			default:
			}
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Next returns the next revision the subscriber expects.
func (s *Subscription) Next() uint64 {
	return s.next.Load()
}

// Advance moves the cursor forward. Calls with a smaller value are
// ignored, keeping the cursor monotonic.
func (s *Subscription) Advance(next uint64) {
	for {
		cur := s.next.Load()
		if next <= cur || s.next.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Wake returns the channel signalled when events at or past the cursor
// may be available.
func (s *Subscription) Wake() <-chan struct{} {
	return s.wake
}
