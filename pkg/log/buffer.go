package log

import (
	"strings"
	"sync"
)

const defaultBufferCapacity = 100

// CircularBuffer is an [io.Writer] that keeps the most recent log records
// in memory. Each Write is one record; once capacity is reached the oldest
// record is overwritten. It is safe for concurrent use.
type CircularBuffer struct {
	entries  []string
	capacity int
	head     int
	size     int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a [CircularBuffer] holding up to capacity
// records. Non-positive capacities fall back to a default of 100.
func NewCircularBuffer(capacity int) *CircularBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}

	return &CircularBuffer{
		entries:  make([]string, capacity),
		capacity: capacity,
	}
}

// Write implements [io.Writer]. p is copied.
func (cb *CircularBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	entry := string(p)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.entries[cb.head] = entry
	cb.head = (cb.head + 1) % cb.capacity

	if cb.size < cb.capacity {
		cb.size++
	}

	return len(p), nil
}

// Tail returns up to n of the newest records, oldest first, with trailing
// newlines removed. n <= 0 returns every stored record.
func (cb *CircularBuffer) Tail(n int) []string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	count := cb.size
	if n > 0 && n < count {
		count = n
	}

	// head points one past the newest record.
	start := cb.head - count
	if start < 0 {
		start += cb.capacity
	}

	lines := make([]string, 0, count)
	for i := range count {
		lines = append(lines, strings.TrimRight(cb.entries[(start+i)%cb.capacity], "\n"))
	}

	return lines
}
