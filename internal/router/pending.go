package router

import "time"

// compactThreshold bounds the dead prefix kept before items are shifted down.
const compactThreshold = 64

// pendingQueue holds payloads for one key that could not be pushed yet.
// Owned by the run loop; not safe for concurrent use.
type pendingQueue struct {
	items    []string
	head     int
	lastPush time.Time
}

func (q *pendingQueue) push(payload string, now time.Time) {
	q.items = append(q.items, payload)
	q.lastPush = now
}

func (q *pendingQueue) peek() (string, bool) {
	if q.head >= len(q.items) {
		return "", false
	}
	return q.items[q.head], true
}

func (q *pendingQueue) pop() {
	if q.head >= len(q.items) {
		return
	}
	q.items[q.head] = ""
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}

func (q *pendingQueue) len() int {
	return len(q.items) - q.head
}

// snapshot returns the queued payloads oldest first.
func (q *pendingQueue) snapshot() []string {
	out := make([]string, q.len())
	copy(out, q.items[q.head:])
	return out
}
