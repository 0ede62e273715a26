package engine

import (
	"sync"
	"time"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/schema"
)

// Op names the engine operation a Record describes.
type Op string

const (
	OpRegister Op = "register"
	OpNotify   Op = "notify"
	OpRetrieve Op = "retrieve"
	OpClear    Op = "clear"
	OpClearAll Op = "clear_all"
)

// Record describes one engine operation.
type Record struct {
	// Seq orders records emitted by one engine.
	Seq int64 `json:"seq"`

	Op         Op            `json:"op"`
	Event      string        `json:"event,omitempty"`
	ListenerID string        `json:"listener_id,omitempty"`
	Mode       dispatch.Mode `json:"mode,omitempty"`

	// Status is the validation verdict, empty for operations that do not
	// validate.
	Status schema.Status `json:"status,omitempty"`

	// Payload is the value validated or delivered, if any.
	Payload any `json:"payload,omitempty"`

	// Error holds the failure message of a failed operation.
	Error string `json:"error,omitempty"`

	At time.Time `json:"at"`
}

// Recorder receives engine records. Record may be called from any goroutine
// and must not block for long.
type Recorder interface {
	Record(rec Record)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(rec Record)

// Record calls f(rec).
func (f RecorderFunc) Record(rec Record) { f(rec) }

// Recorders fans a record out to several recorders in order.
type Recorders []Recorder

// Record implements Recorder.
func (rs Recorders) Record(rec Record) {
	for _, r := range rs {
		if r != nil {
			r.Record(rec)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(Record) {}

// MemoryRecorder keeps records in memory.
//
// Thread-safety: MemoryRecorder is safe for concurrent use.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

// Records returns a copy of the records received so far.
func (m *MemoryRecorder) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Ops returns the op of every record received so far, in order.
func (m *MemoryRecorder) Ops() []Op {
	recs := m.Records()
	out := make([]Op, len(recs))
	for i, r := range recs {
		out[i] = r.Op
	}
	return out
}
