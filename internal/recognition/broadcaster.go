package recognition

import (
	"sync"

	"github.com/okian/facecheck/pkg/metrics"
)

const defaultSubscriberBuffer = 16

// Broadcaster fans events out to subscribers. A subscriber that falls behind
// loses events instead of stalling the loop.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	next   uint64
	buffer int
	closed bool
}

// NewBroadcaster creates a Broadcaster with per-subscriber buffers of size
// buffer (a default is used when buffer <= 0).
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Publish implements Publisher.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; calling it twice is safe. After Close the channel comes
// back already closed.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	n := len(b.subs)
	b.mu.Unlock()
	metrics.UpdateFeedSubscribers(n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
			n := len(b.subs)
			b.mu.Unlock()
			metrics.UpdateFeedSubscribers(n)
		})
	}
}

// Close ends every subscription by closing its channel. Later publishes are
// dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
	metrics.UpdateFeedSubscribers(0)
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
