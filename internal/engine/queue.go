package engine

import (
	"context"
	"log/slog"
	"sync"
)

// recordQueue is a thread-safe FIFO queue for records.
//
// The queue is unbounded so that notification callbacks never block on a
// slow recorder.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in AsyncRecorder.Run.
type recordQueue struct {
	mu      sync.Mutex
	records []Record
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newRecordQueue() *recordQueue {
	return &recordQueue{
		records: make([]Record, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// enqueue adds a record to the back of the queue.
// Returns false if the queue is closed.
func (q *recordQueue) enqueue(r Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.records = append(q.records, r)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue removes the front record without blocking.
func (q *recordQueue) tryDequeue() (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return Record{}, false
	}
	r := q.records[0]

	// Drop the reference held by the backing array.
	q.records[0] = Record{}
	if len(q.records) == 1 {
		q.records = q.records[:0]
	} else {
		q.records = q.records[1:]
	}
	return r, true
}

func (q *recordQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *recordQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

func (q *recordQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// AsyncRecorder decouples the engine from a slow Recorder such as the
// SQLite journal. Record enqueues; Run delivers records to the wrapped
// recorder in FIFO order from a single goroutine.
//
// Thread-safety model:
//   - Record(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type AsyncRecorder struct {
	next  Recorder
	queue *recordQueue
}

// NewAsyncRecorder wraps next.
func NewAsyncRecorder(next Recorder) *AsyncRecorder {
	return &AsyncRecorder{next: next, queue: newRecordQueue()}
}

// Record implements Recorder. Records submitted after Close are dropped.
func (a *AsyncRecorder) Record(rec Record) {
	if !a.queue.enqueue(rec) {
		slog.Debug("record dropped: recorder closed", "op", rec.Op, "seq", rec.Seq)
	}
}

// Run delivers queued records until ctx is cancelled or Close is called.
// After Close, records already queued are delivered before Run returns.
func (a *AsyncRecorder) Run(ctx context.Context) error {
	for {
		if rec, ok := a.queue.tryDequeue(); ok {
			a.next.Record(rec)
			continue
		}

		select {
		case <-ctx.Done():
			a.queue.close()
			return ctx.Err()
		case <-a.queue.wait():
			// The signal channel is closed by Close; a closed, drained
			// queue ends the loop.
			if a.queue.len() == 0 && a.closed() {
				return nil
			}
		}
	}
}

// Close stops accepting records.
func (a *AsyncRecorder) Close() {
	a.queue.close()
}

// Pending returns the number of records not yet delivered.
func (a *AsyncRecorder) Pending() int {
	return a.queue.len()
}

func (a *AsyncRecorder) closed() bool {
	a.queue.mu.Lock()
	defer a.queue.mu.Unlock()
	return a.queue.closed
}
