package testutil

import (
	"context"
	"sync"

	"github.com/roach88/fca/internal/dispatch"
)

// ListenOutcome scripts the result of one listen call.
type ListenOutcome struct {
	// Value is what the listen call resolves to.
	Value any

	// Reject, when non-nil, makes the call fail with a RejectionError
	// carrying this payload.
	Reject any

	// Err, when non-nil, makes the call fail with this error.
	Err error

	// Hang leaves a transport listen unacknowledged until its waiter gives up.
	Hang bool
}

// ModuleCall records one call made on a FakeModule.
type ModuleCall struct {
	Op    string // "listen" or "clear"
	Event string
}

// FakeModule is a scripted dispatch.Module.
//
// Listen calls with no scripted outcome resolve to an increasing integer
// dispatch id, like the SDK does.
//
// Thread-safety: FakeModule is safe for concurrent use.
type FakeModule struct {
	mu        sync.Mutex
	outcomes  map[string]ListenOutcome
	calls     []ModuleCall
	callbacks map[string]dispatch.Callback
	nextID    int
}

// NewFakeModule creates a FakeModule with no scripted outcomes.
func NewFakeModule() *FakeModule {
	return &FakeModule{
		outcomes:  make(map[string]ListenOutcome),
		callbacks: make(map[string]dispatch.Callback),
	}
}

// Script sets the outcome of listen calls for a bare event name.
func (m *FakeModule) Script(event string, outcome ListenOutcome) *FakeModule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[event] = outcome
	return m
}

// Listen implements dispatch.Module.
func (m *FakeModule) Listen(_ context.Context, event string, cb dispatch.Callback) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, ModuleCall{Op: "listen", Event: event})
	m.callbacks[event] = cb

	if o, ok := m.outcomes[event]; ok {
		switch {
		case o.Reject != nil:
			return nil, dispatch.Reject(o.Reject)
		case o.Err != nil:
			return nil, o.Err
		default:
			return o.Value, nil
		}
	}
	m.nextID++
	return m.nextID, nil
}

// Clear implements dispatch.Module.
func (m *FakeModule) Clear(_ context.Context, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ModuleCall{Op: "clear", Event: event})
	return nil
}

// Calls returns the recorded calls with the given op.
func (m *FakeModule) Calls(op string) []ModuleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ModuleCall
	for _, c := range m.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Emit delivers payload to the latest callback registered for event.
// It reports false when nothing has listened to event yet.
func (m *FakeModule) Emit(event string, payload any) bool {
	m.mu.Lock()
	cb := m.callbacks[event]
	m.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(payload)
	return true
}

// SentMessage records one FakeTransport.Send call.
type SentMessage struct {
	Module string
	Method string
	Params map[string]any
}

// FakeTransport is a scripted dispatch.Transport.
//
// Listen calls with no scripted outcome are acknowledged with
// {"event": "module.method", "listening": true}.
//
// Thread-safety: FakeTransport is safe for concurrent use.
type FakeTransport struct {
	mu        sync.Mutex
	nextID    int64
	outcomes  map[string]ListenOutcome
	listens   []SentMessage
	sent      []SentMessage
	callbacks map[string]dispatch.Callback
	abandoned []int64
}

// NewFakeTransport creates a FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		outcomes:  make(map[string]ListenOutcome),
		callbacks: make(map[string]dispatch.Callback),
	}
}

// Script sets the acknowledgement outcome for module.method.
func (t *FakeTransport) Script(module, method string, outcome ListenOutcome) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes[module+"."+method] = outcome
	return t
}

// Listen implements dispatch.Transport.
func (t *FakeTransport) Listen(_ context.Context, module, method string, cb dispatch.Callback) (*dispatch.Pending, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := module + "." + method
	t.nextID++
	t.listens = append(t.listens, SentMessage{Module: module, Method: method, Params: map[string]any{"listen": true}})
	t.callbacks[key] = cb

	p := dispatch.NewPending(t.nextID)
	o, ok := t.outcomes[key]
	switch {
	case !ok:
		p.Resolve(map[string]any{"event": key, "listening": true})
	case o.Err != nil:
		return nil, o.Err
	case o.Reject != nil:
		p.Reject(dispatch.Reject(o.Reject))
	case o.Hang:
		id := p.ID
		p.OnCancel(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.abandoned = append(t.abandoned, id)
			delete(t.callbacks, key)
		})
	default:
		p.Resolve(o.Value)
	}
	return p, nil
}

// Abandoned returns the ids of hanging listens whose waiter gave up.
func (t *FakeTransport) Abandoned() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.abandoned...)
}

// Send implements dispatch.Transport.
func (t *FakeTransport) Send(_ context.Context, module, method string, params map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, SentMessage{Module: module, Method: method, Params: params})
	return nil
}

// Listens returns the recorded listen requests.
func (t *FakeTransport) Listens() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.listens...)
}

// Sent returns the recorded Send calls.
func (t *FakeTransport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.sent...)
}

// Emit delivers payload to the latest callback registered for module.method.
func (t *FakeTransport) Emit(module, method string, payload any) bool {
	t.mu.Lock()
	cb := t.callbacks[module+"."+method]
	t.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(payload)
	return true
}
