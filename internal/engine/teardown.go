package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/fca/internal/eventname"
)

// ClearEventListeners clears the listeners of one event and drops every
// registry entry for the same surface, module and method, however the
// event was spelled when it was registered.
//
// The identifier must have the sdk_Module.method shape; otherwise an
// FCAError is returned and nothing is cleared. The clear call is issued
// whether or not the registry holds the event.
func (e *Engine) ClearEventListeners(ctx context.Context, eventFullName string) (bool, error) {
	name, err := eventname.ParseStrict(eventFullName)
	if err != nil {
		return false, newFCAError("event clear error: %v", err)
	}

	mode := e.mode.Mode()
	if err := e.strategy(mode).Clear(ctx, name); err != nil {
		slog.Error("clear failed", "event", eventFullName, "mode", mode, "error", err)
		e.record(Record{Op: OpClear, Event: eventFullName, Mode: mode, Error: err.Error()})
		return false, fmt.Errorf("clear %s: %w", eventFullName, err)
	}

	removed := e.registry.removeEvent(name)
	slog.Info("listeners cleared", "event", eventFullName, "mode", mode, "removed", removed)
	e.record(Record{Op: OpClear, Event: eventFullName, Mode: mode})
	return true, nil
}

// moduleKey identifies one module of one surface.
type moduleKey struct {
	sdkType string
	module  string
}

// ClearAllListeners clears every registered listener with one clear call
// per distinct (surface, module) pair, then empties the registry.
//
// An empty registry makes no clear call and returns
// StatusNoActiveListeners. Otherwise the registry is emptied even when
// some modules fail to clear; those failures are returned together.
func (e *Engine) ClearAllListeners(ctx context.Context) (string, error) {
	entries := e.registry.drain()
	if len(entries) == 0 {
		e.record(Record{Op: OpClearAll})
		return StatusNoActiveListeners, nil
	}

	mode := e.mode.Mode()
	strategy := e.strategy(mode)

	byModule := make(map[moduleKey][]eventname.Name)
	var keys []moduleKey
	for _, l := range entries {
		k := moduleKey{sdkType: l.name.SDKType, module: l.name.Module}
		if _, seen := byModule[k]; !seen {
			keys = append(keys, k)
		}
		byModule[k] = append(byModule[k], l.name)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sdkType != keys[j].sdkType {
			return keys[i].sdkType < keys[j].sdkType
		}
		return keys[i].module < keys[j].module
	})

	var result *multierror.Error
	for _, k := range keys {
		if err := strategy.ClearModule(ctx, k.sdkType, k.module, byModule[k]); err != nil {
			slog.Error("module clear failed",
				"sdk_type", k.sdkType,
				"module", k.module,
				"mode", mode,
				"error", err,
			)
			result = multierror.Append(result, fmt.Errorf("clear %s/%s: %w", k.sdkType, k.module, err))
		}
	}

	slog.Info("all listeners cleared", "listeners", len(entries), "modules", len(keys), "mode", mode)
	rec := Record{Op: OpClearAll, Mode: mode}
	if err := result.ErrorOrNil(); err != nil {
		rec.Error = err.Error()
	}
	e.record(rec)
	return StatusClearedListeners, result.ErrorOrNil()
}
