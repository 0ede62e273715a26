package engine

import (
	"github.com/roach88/fca/internal/catalog"
	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/eventname"
	"github.com/roach88/fca/internal/schema"
)

// Status strings returned by ClearAllListeners.
const (
	StatusNoActiveListeners = "No active listeners"
	StatusClearedListeners  = "Cleared Listeners"
)

// Engine is the event invocation engine.
//
// Thread-safety model:
//   - all exported methods are safe from any goroutine
//   - notification callbacks may fire on any goroutine at any time after
//     the listen call is issued
//
// INVARIANTS:
//   - listener ids are unique for the lifetime of their registration
//   - a mailbox holds at most one observation
//   - registry entries are removed only by teardown
type Engine struct {
	modules   dispatch.ModuleTable
	transport dispatch.Transport
	catalogs  catalog.Set
	mode      ModeSource
	clock     Clock
	recorder  Recorder
	validator *schema.Validator
	seq       sequence
	registry  *registry

	// legacyIDs keeps registrations whose dispatch id is not a scalar,
	// naming them by the value's %v rendering.
	legacyIDs bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithModules sets the module table used in SDK mode.
func WithModules(t dispatch.ModuleTable) EngineOption {
	return func(e *Engine) {
		e.modules = t
	}
}

// WithTransport sets the raw transport used in Transport mode.
func WithTransport(t dispatch.Transport) EngineOption {
	return func(e *Engine) {
		e.transport = t
	}
}

// WithCatalogs sets the method catalogs, keyed by API surface.
func WithCatalogs(s catalog.Set) EngineOption {
	return func(e *Engine) {
		e.catalogs = s
	}
}

// WithModeSource sets where the dispatch mode is read from.
func WithModeSource(src ModeSource) EngineOption {
	return func(e *Engine) {
		e.mode = src
	}
}

// WithMode fixes the dispatch mode.
func WithMode(m dispatch.Mode) EngineOption {
	return WithModeSource(FixedMode(m))
}

// WithClock sets the clock that stamps notifications and records.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRecorder sets the record sink.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithValidator shares a schema validator (and its compile cache).
func WithValidator(v *schema.Validator) EngineOption {
	return func(e *Engine) {
		e.validator = v
	}
}

// WithLegacyIDCoercion keeps registrations whose dispatch id is an object,
// string-coercing it into the listener id. The verdict is always FAIL.
//
// Default: off, such registrations are rejected.
func WithLegacyIDCoercion(on bool) EngineOption {
	return func(e *Engine) {
		e.legacyIDs = on
	}
}

// New creates an Engine. Without options it dispatches in SDK mode over an
// empty module table, so every registration fails until WithModules or
// WithTransport is supplied.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		modules:   dispatch.ModuleTable{},
		catalogs:  catalog.Set{},
		mode:      FixedMode(dispatch.ModeSDK),
		clock:     SystemClock{},
		recorder:  nopRecorder{},
		validator: schema.NewValidator(),
		registry:  newRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SdkTypeAndModule resolves an event identifier into its API surface and
// lower-cased module.
func (e *Engine) SdkTypeAndModule(identifier string) (sdkType, module string) {
	return eventname.Resolve(identifier)
}

// Mode returns the dispatch mode currently reported by the mode source.
func (e *Engine) Mode() dispatch.Mode {
	return e.mode.Mode()
}

// Listeners returns the registered listeners in registration order.
func (e *Engine) Listeners() []ListenerInfo {
	entries := e.registry.snapshot()
	out := make([]ListenerInfo, len(entries))
	for i, l := range entries {
		out[i] = l.info()
	}
	return out
}

// Len returns the number of registered listeners.
func (e *Engine) Len() int {
	return e.registry.len()
}

// strategy selects the dispatch strategy for a mode.
func (e *Engine) strategy(m dispatch.Mode) dispatch.Strategy {
	if m == dispatch.ModeTransport {
		return dispatch.TransportStrategy{Transport: e.transport}
	}
	return dispatch.SDKStrategy{Table: e.modules}
}

// variants looks up the acknowledgement and notification variants of an
// event. found is false when the catalog has no entry for it.
func (e *Engine) variants(n eventname.Name) (ack, notification schema.Variant, found bool) {
	m, ok := e.catalogs.Method(n.SDKType, n.CatalogName())
	if !ok {
		return schema.Variant{}, schema.Variant{}, false
	}
	ack, notification, _ = schema.EventVariants(m.ResultVariants())
	return ack, notification, true
}

func (e *Engine) record(rec Record) {
	rec.Seq = e.seq.next()
	if rec.At.IsZero() {
		rec.At = e.clock.Now()
	}
	e.recorder.Record(rec)
}
