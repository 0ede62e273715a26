package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/eventname"
	"github.com/roach88/fca/internal/schema"
)

// observation is one delivered notification.
type observation struct {
	value any
	at    time.Time
}

// mailbox holds the latest notification of one listener. Writes replace
// the slot wholesale, so a reader sees either the previous or the new
// observation.
type mailbox struct {
	slot  atomic.Pointer[observation]
	owner atomic.Value // listener id, set once registered
}

func (m *mailbox) put(value any, at time.Time) {
	m.slot.Store(&observation{value: value, at: at})
}

func (m *mailbox) load() *observation {
	return m.slot.Load()
}

func (m *mailbox) ownerID() string {
	id, _ := m.owner.Load().(string)
	return id
}

// listener is one registry entry.
type listener struct {
	id           string
	seq          int64
	name         eventname.Name
	mode         dispatch.Mode
	dispatchID   any
	ack          schema.Variant
	notification schema.Variant
	registeredAt time.Time
	box          *mailbox
}

// ListenerInfo is a read-only view of a registered listener.
type ListenerInfo struct {
	ID           string        `json:"eventListenerId"`
	Event        string        `json:"eventName"`
	SDKType      string        `json:"sdkType"`
	Module       string        `json:"module"`
	Mode         dispatch.Mode `json:"mode"`
	DispatchID   any           `json:"dispatchId"`
	RegisteredAt time.Time     `json:"registeredAt"`
	Observed     bool          `json:"observed"`
	LastSeenAt   *time.Time    `json:"lastSeenAt,omitempty"`
}

func (l *listener) info() ListenerInfo {
	li := ListenerInfo{
		ID:           l.id,
		Event:        l.name.Full,
		SDKType:      l.name.SDKType,
		Module:       l.name.Module,
		Mode:         l.mode,
		DispatchID:   l.dispatchID,
		RegisteredAt: l.registeredAt,
	}
	if obs := l.box.load(); obs != nil {
		at := obs.at
		li.Observed = true
		li.LastSeenAt = &at
	}
	return li
}

// registry maps listener ids to listeners.
//
// Thread-safety: registry is safe for concurrent use.
type registry struct {
	mu      sync.Mutex
	seq     int64
	entries map[string]*listener
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*listener)}
}

// add stores l under an id derived from base. A base already in use gets a
// "~n" suffix so that every entry keeps its own id and stays usable as a URL
// path segment.
func (r *registry) add(base string, l *listener) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := base
	for n := 2; ; n++ {
		if _, taken := r.entries[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s~%d", base, n)
	}
	r.seq++
	l.id = id
	l.seq = r.seq
	l.box.owner.Store(id)
	r.entries[id] = l
	return id
}

func (r *registry) get(id string) (*listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.entries[id]
	return l, ok
}

// removeEvent deletes every entry whose event has the surface, module and
// method of name, and returns how many were removed. Methods compare without
// case, so a core registration made without its sdk prefix still matches.
func (r *registry) removeEvent(name eventname.Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, l := range r.entries {
		if sameEvent(l.name, name) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// drain empties the registry and returns its entries in registration order.
func (r *registry) drain() []*listener {
	r.mu.Lock()
	out := make([]*listener, 0, len(r.entries))
	for _, l := range r.entries {
		out = append(out, l)
	}
	r.entries = make(map[string]*listener)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// snapshot returns the entries in registration order.
func (r *registry) snapshot() []*listener {
	r.mu.Lock()
	out := make([]*listener, 0, len(r.entries))
	for _, l := range r.entries {
		out = append(out, l)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func sameEvent(a, b eventname.Name) bool {
	return a.SDKType == b.SDKType && a.Module == b.Module && strings.EqualFold(a.Method, b.Method)
}
