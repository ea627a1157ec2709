package router

import (
	"sync"
)

// Mailbox is an unbounded multi-producer FIFO with a single consumer.
// Post never blocks; the ring doubles its capacity at 70% fill. The consumer
// waits on Ready() inside a select and then drains with DrainTo.
type Mailbox[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// ready holds at most one wakeup; a pending signal means "look again".
	ready chan struct{}

	// Stats
	totalPosted   int64
	totalTaken    int64
	resizeCount   int
	highWatermark int
}

// NewMailbox creates a mailbox with the given initial capacity.
func NewMailbox[T any](initialCapacity int) *Mailbox[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Mailbox[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		ready:    make(chan struct{}, 1),
	}
}

// Post appends an item and wakes the consumer.
// Returns false if the mailbox is closed.
func (b *Mailbox[T]) Post(item T) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalPosted++
	if b.count > b.highWatermark {
		b.highWatermark = b.count
	}
	b.mu.Unlock()

	b.signal()
	return true
}

// Ready fires when items may be available.
func (b *Mailbox[T]) Ready() <-chan struct{} {
	return b.ready
}

// DrainTo removes up to max items (all if max <= 0) in FIFO order.
// If items remain afterwards the consumer is woken again.
func (b *Mailbox[T]) DrainTo(max int) []T {
	b.mu.Lock()

	if b.count == 0 {
		b.mu.Unlock()
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		result[i] = b.buf[b.head]
		b.buf[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.totalTaken++
	}
	more := b.count > 0
	b.mu.Unlock()

	if more {
		b.signal()
	}
	return result
}

// Close rejects further posts. Items already queued stay drainable.
func (b *Mailbox[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signal()
}

// Stats returns mailbox statistics.
func (b *Mailbox[T]) Stats() MailboxStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return MailboxStats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalPosted:   b.totalPosted,
		TotalTaken:    b.totalTaken,
		ResizeCount:   b.resizeCount,
		HighWatermark: b.highWatermark,
	}
}

// MailboxStats contains mailbox statistics.
type MailboxStats struct {
	Count         int   `json:"count"`
	Capacity      int   `json:"capacity"`
	TotalPosted   int64 `json:"total_posted"`
	TotalTaken    int64 `json:"total_taken"`
	ResizeCount   int   `json:"resize_count"`
	HighWatermark int   `json:"high_watermark"`
}

func (b *Mailbox[T]) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// grow doubles the ring capacity. Must be called with lock held.
func (b *Mailbox[T]) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			// Contiguous: [head...tail)
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
