package publisher

import (
	"sync"

	audit "registrar/pkg/platform/audit"
)

// ringBuffer is a bounded, thread-safe FIFO of pending events. A full buffer
// rejects new events rather than evicting queued ones.
type ringBuffer struct {
	mu       sync.Mutex
	events   []audit.Event
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	dropped  int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &ringBuffer{
		events:   make([]audit.Event, capacity),
		capacity: capacity,
	}
}

// tryEnqueue adds event, or counts a drop and returns false when full.
func (b *ringBuffer) tryEnqueue(event audit.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.dropped++
		return false
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
	return true
}

// dequeueBatch removes up to n events, oldest first.
func (b *ringBuffer) dequeueBatch(n int) []audit.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n = min(n, b.count)

	result := make([]audit.Event, n)
	for i := range n {
		result[i] = b.events[b.tail]
		b.events[b.tail] = audit.Event{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return result
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedTotal() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
