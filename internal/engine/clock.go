package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps notifications and records.
// Implemented by SystemClock (production) and testutil.DeterministicClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// sequence is a monotonic counter ordering records emitted by one engine.
//
// Thread-safety: sequence is safe for concurrent use (atomic operations).
// Notification records are emitted from callback goroutines.
type sequence struct {
	n atomic.Int64
}

// next returns the next sequence number.
func (s *sequence) next() int64 {
	return s.n.Add(1)
}
