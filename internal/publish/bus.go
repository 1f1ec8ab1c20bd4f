package publish

import (
	"sync"

	"github.com/couchcryptid/incident-feed/internal/observability"
)

// defaultBufferSize is each subscriber's queue depth before old events are
// shed.
const defaultBufferSize = 256

// Bus is an in-process fan-out with per-subscriber bounded queues. Publish
// never blocks: when a subscriber's queue is full its oldest event is dropped
// to make room, so ingestion speed is independent of the slowest consumer.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	buffer  int
	closed  bool
	metrics *observability.Metrics
}

func NewBus(buffer int, metrics *observability.Metrics) *Bus {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Bus{
		subs:    make(map[int]chan Event),
		buffer:  buffer,
		metrics: metrics,
	}
}

// Subscribe registers a consumer. The returned cancel func must be called
// when done; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, shedding each subscriber's
// oldest event when its queue is full.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
				b.metrics.EventsDropped.Inc()
			default:
			}
			select {
			case ch <- ev:
			default:
				b.metrics.EventsDropped.Inc()
			}
		}
	}
	b.metrics.EventsPublished.WithLabelValues(ev.Kind).Inc()
}

// Close detaches and closes every subscriber channel. Further Publish and
// Subscribe calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
