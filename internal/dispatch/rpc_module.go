package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/fca/internal/catalog"
	"github.com/roach88/fca/internal/eventname"
)

// RPCModule implements Module on top of a Transport, standing in for a
// generated SDK module when the harness talks to the device directly.
type RPCModule struct {
	name      string
	transport Transport

	mu     sync.Mutex
	events map[string]bool
}

// NewRPCModule creates a Module for the named module.
func NewRPCModule(module string, t Transport) *RPCModule {
	return &RPCModule{name: module, transport: t, events: make(map[string]bool)}
}

// Listen sends listen for the event, waits for the acknowledgement and
// resolves to the request id.
func (m *RPCModule) Listen(ctx context.Context, event string, cb Callback) (any, error) {
	method := methodFor(event)
	pending, err := m.transport.Listen(ctx, m.name, method, cb)
	if err != nil {
		return nil, err
	}
	if _, err := pending.Wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.events[event] = true
	m.mu.Unlock()
	return pending.ID, nil
}

// Clear sends {"listen": false} for the event, or for every event this
// module has listened to when event is empty.
func (m *RPCModule) Clear(ctx context.Context, event string) error {
	m.mu.Lock()
	var targets []string
	if event == "" {
		for e := range m.events {
			targets = append(targets, e)
		}
		m.events = make(map[string]bool)
	} else {
		targets = []string{event}
		delete(m.events, event)
	}
	m.mu.Unlock()

	for _, e := range targets {
		if err := m.transport.Send(ctx, m.name, methodFor(e), map[string]any{"listen": false}); err != nil {
			return err
		}
	}
	return nil
}

func methodFor(event string) string {
	return eventname.Parse("x.on" + event).MethodName()
}

// TableFromCatalog builds a ModuleTable for one surface with an RPCModule
// for every module that declares at least one event.
func TableFromCatalog(sdkType string, c *catalog.Catalog, t Transport) ModuleTable {
	mods := make(map[string]Module)
	for _, m := range c.Events() {
		module := eventname.Parse(m.Name).Module
		if _, ok := mods[module]; !ok {
			mods[module] = NewRPCModule(module, t)
		}
	}
	return ModuleTable{sdkType: mods}
}

// TableFromSet builds RPCModules for every surface of a catalog set.
func TableFromSet(set catalog.Set, t Transport) ModuleTable {
	surfaces := make([]string, 0, len(set))
	for surface := range set {
		surfaces = append(surfaces, surface)
	}
	sort.Strings(surfaces)

	tables := make([]ModuleTable, 0, len(surfaces))
	for _, surface := range surfaces {
		tables = append(tables, TableFromCatalog(surface, set[surface], t))
	}
	return Merge(tables...)
}

// Merge combines tables; later tables win on conflicting modules.
func Merge(tables ...ModuleTable) ModuleTable {
	out := make(ModuleTable)
	for _, t := range tables {
		for surface, mods := range t {
			if out[surface] == nil {
				out[surface] = make(map[string]Module)
			}
			for name, m := range mods {
				out[surface][name] = m
			}
		}
	}
	return out
}
