package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mode selects the dispatch strategy.
type Mode string

const (
	ModeSDK       Mode = "SDK"
	ModeTransport Mode = "Transport"
)

// ParseMode parses a mode name, ignoring case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sdk":
		return ModeSDK, nil
	case "transport":
		return ModeTransport, nil
	default:
		return "", fmt.Errorf("invalid communication mode %q: must be SDK or Transport", s)
	}
}

// Callback receives notification payloads for one listener. It may be called
// from any goroutine.
type Callback func(payload any)

// Module is the listen/clear pair of one SDK module.
type Module interface {
	// Listen registers cb for the bare event name (e.g. "namechanged") and
	// returns the dispatch identifier assigned by the SDK.
	Listen(ctx context.Context, event string, cb Callback) (any, error)

	// Clear removes listeners for the bare event name, or every listener of
	// the module when event is empty.
	Clear(ctx context.Context, event string) error
}

// ModuleTable maps surface then module name to a Module.
type ModuleTable map[string]map[string]Module

// Module looks up a module. Keys are expected in lower case.
func (t ModuleTable) Module(sdkType, module string) (Module, error) {
	mods, ok := t[sdkType]
	if !ok {
		return nil, &ModuleNotFoundError{SDKType: sdkType, Module: module}
	}
	m, ok := mods[module]
	if !ok || m == nil {
		return nil, &ModuleNotFoundError{SDKType: sdkType, Module: module}
	}
	return m, nil
}

// Transport is the raw device transport.
type Transport interface {
	// Listen sends a listen request for module.method and routes subsequent
	// notifications to cb. The returned Pending resolves to the device's
	// acknowledgement.
	Listen(ctx context.Context, module, method string, cb Callback) (*Pending, error)

	// Send issues a request and does not wait for its response.
	Send(ctx context.Context, module, method string, params map[string]any) error
}

// Pending is an in-flight request identified by a transport id.
type Pending struct {
	ID int64

	once    sync.Once
	done    chan struct{}
	value   any
	err     error
	release func()
}

// NewPending creates an unresolved Pending.
func NewPending(id int64) *Pending {
	return &Pending{ID: id, done: make(chan struct{})}
}

// Resolve completes the request with a value. Only the first of Resolve or
// Reject takes effect.
func (p *Pending) Resolve(value any) {
	p.once.Do(func() {
		p.value = value
		close(p.done)
	})
}

// Reject completes the request with an error.
func (p *Pending) Reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// OnCancel registers f to run once when a Wait abandons the request because
// its context ended first. Transports use it to drop the routing state kept
// for the id. Call it before handing the Pending to a waiter.
func (p *Pending) OnCancel(f func()) {
	p.release = f
}

// Wait blocks until the request completes or ctx is done. When ctx ends
// first the request is rejected with ctx.Err(), so a late response is
// ignored, and the OnCancel hook runs.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
	}

	abandoned := false
	p.once.Do(func() {
		p.err = ctx.Err()
		abandoned = true
		close(p.done)
	})
	if abandoned && p.release != nil {
		p.release()
	}
	return p.value, p.err
}
