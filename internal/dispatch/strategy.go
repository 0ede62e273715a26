package dispatch

import (
	"context"
	"fmt"

	"github.com/roach88/fca/internal/eventname"
)

// Registration is the outcome of a successful listen call.
type Registration struct {
	// DispatchID identifies the listener on the device side. It is the
	// SDK's resolved value in SDK mode and the request id in Transport mode.
	DispatchID any

	// Ack is the acknowledgement to validate against the acknowledgement
	// schema variant.
	Ack any
}

// Strategy registers and clears listeners for parsed event names.
type Strategy interface {
	Listen(ctx context.Context, name eventname.Name, cb Callback) (Registration, error)
	Clear(ctx context.Context, name eventname.Name) error

	// ClearModule clears every listener of one module. names lists the
	// registered events of that module.
	ClearModule(ctx context.Context, sdkType, module string, names []eventname.Name) error
}

// SDKStrategy dispatches through a ModuleTable.
type SDKStrategy struct {
	Table ModuleTable
}

// Listen calls the module's listen function with the bare event name.
//
// The SDK resolves to a dispatch id rather than an acknowledgement, so the
// acknowledgement reported here is synthesized from the event name.
func (s SDKStrategy) Listen(ctx context.Context, name eventname.Name, cb Callback) (Registration, error) {
	mod, err := s.Table.Module(name.SDKType, name.Module)
	if err != nil {
		return Registration{}, err
	}
	id, err := mod.Listen(ctx, name.Suffix(), cb)
	if err != nil {
		return Registration{}, err
	}
	return Registration{
		DispatchID: id,
		Ack:        map[string]any{"event": name.Module + "." + name.MethodName(), "listening": true},
	}, nil
}

// Clear calls the module's clear function with the bare event name.
func (s SDKStrategy) Clear(ctx context.Context, name eventname.Name) error {
	mod, err := s.Table.Module(name.SDKType, name.Module)
	if err != nil {
		return err
	}
	return mod.Clear(ctx, name.Suffix())
}

// ClearModule calls the module's clear function once with no event name.
func (s SDKStrategy) ClearModule(ctx context.Context, sdkType, module string, _ []eventname.Name) error {
	mod, err := s.Table.Module(sdkType, module)
	if err != nil {
		return err
	}
	return mod.Clear(ctx, "")
}

// TransportStrategy dispatches straight to a Transport.
type TransportStrategy struct {
	Transport Transport
}

// Listen sends listen for module.onEvent and waits for the acknowledgement.
func (s TransportStrategy) Listen(ctx context.Context, name eventname.Name, cb Callback) (Registration, error) {
	if s.Transport == nil {
		return Registration{}, fmt.Errorf("transport mode: no transport configured")
	}
	pending, err := s.Transport.Listen(ctx, name.Module, name.MethodName(), cb)
	if err != nil {
		return Registration{}, err
	}
	ack, err := pending.Wait(ctx)
	if err != nil {
		return Registration{}, err
	}
	return Registration{DispatchID: pending.ID, Ack: ack}, nil
}

// Clear sends {"listen": false} for the event.
func (s TransportStrategy) Clear(ctx context.Context, name eventname.Name) error {
	if s.Transport == nil {
		return fmt.Errorf("transport mode: no transport configured")
	}
	return s.Transport.Send(ctx, name.Module, name.MethodName(), map[string]any{"listen": false})
}

// ClearModule sends {"listen": false} once per distinct event of the module;
// the wire has no module-wide clear.
func (s TransportStrategy) ClearModule(ctx context.Context, _, _ string, names []eventname.Name) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		method := n.MethodName()
		if seen[method] {
			continue
		}
		seen[method] = true
		if err := s.Clear(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
