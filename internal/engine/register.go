package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cast"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/eventname"
	"github.com/roach88/fca/internal/schema"
)

// Request asks the engine to register a listener.
type Request struct {
	Params RequestParams `json:"params"`

	// IsNotSupportedAPI marks the event as belonging to a capability the
	// device is expected not to support. The listen call should then be
	// rejected with a {code, message} error.
	IsNotSupportedAPI bool `json:"isNotSupportedApi,omitempty"`
}

// RequestParams carries the event identifier.
type RequestParams struct {
	Event string `json:"event"`
}

// NewRequest builds a Request for an event identifier.
func NewRequest(event string, notSupported bool) Request {
	return Request{Params: RequestParams{Event: event}, IsNotSupportedAPI: notSupported}
}

// ListenerResponse is the raw outcome of the listen call.
type ListenerResponse struct {
	ListenerResponse any `json:"listenerResponse"`
	Error            any `json:"error"`
}

// RegistrationResult is the outcome of NorthBoundEventHandling.
type RegistrationResult struct {
	// EventName is the identifier as supplied.
	EventName string `json:"eventName"`

	// EventListenerID is empty when no listener was registered.
	EventListenerID string `json:"eventListenerId"`

	EventListenerResponse     ListenerResponse `json:"eventListenerResponse"`
	EventListenerSchemaResult schema.Result    `json:"eventListenerSchemaResult"`
}

// Registered reports whether a listener was added to the registry.
func (r RegistrationResult) Registered() bool {
	return r.EventListenerID != ""
}

// MarshalJSON renders an empty listener id as null.
func (r RegistrationResult) MarshalJSON() ([]byte, error) {
	type plain RegistrationResult
	var id any
	if r.EventListenerID != "" {
		id = r.EventListenerID
	}
	return json.Marshal(struct {
		plain
		EventListenerID any `json:"eventListenerId"`
	}{plain: plain(r), EventListenerID: id})
}

// NorthBoundEventHandling registers a listener for req's event and reports
// the listen outcome with its schema verdict.
//
// Exactly one listen call is made; failures are not retried. Dispatch and
// validation failures are reported in the result. The only error returned
// is an FCAError for a request without an event.
func (e *Engine) NorthBoundEventHandling(ctx context.Context, req Request) (RegistrationResult, error) {
	full := req.Params.Event
	if strings.TrimSpace(full) == "" {
		return RegistrationResult{}, newFCAError("event registration error: params.event is required")
	}

	mode := e.mode.Mode()
	name := eventname.Parse(full)
	ack, notification, found := e.variants(name)
	if !found {
		slog.Warn("no catalog entry for event",
			"event", full,
			"sdk_type", name.SDKType,
			"method", name.CatalogName(),
		)
	}

	box := &mailbox{}
	cb := e.deliver(name, box)

	slog.Debug("registering listener",
		"event", full,
		"sdk_type", name.SDKType,
		"module", name.Module,
		"mode", mode,
	)

	reg, err := e.strategy(mode).Listen(ctx, name, cb)
	if err != nil {
		res := e.rejected(name, req.IsNotSupportedAPI, err)
		e.record(Record{
			Op:      OpRegister,
			Event:   full,
			Mode:    mode,
			Status:  res.EventListenerSchemaResult.Status,
			Payload: res.EventListenerResponse.Error,
			Error:   err.Error(),
		})
		return res, nil
	}

	res := RegistrationResult{
		EventName:             full,
		EventListenerResponse: ListenerResponse{ListenerResponse: reg.DispatchID},
	}

	idText, coerced, ok := e.dispatchIDText(reg.DispatchID)
	if !ok {
		slog.Warn("listen resolved to a non-scalar dispatch id",
			"event", full,
			"value", fmt.Sprintf("%v", reg.DispatchID),
		)
		res.EventListenerResponse = ListenerResponse{Error: reg.DispatchID}
		res.EventListenerSchemaResult = schema.Fail(schema.Issue{
			Keyword: "dispatchId",
			Message: fmt.Sprintf("listen resolved to %T, not a dispatch identifier", reg.DispatchID),
		})
		e.record(Record{
			Op:      OpRegister,
			Event:   full,
			Mode:    mode,
			Status:  schema.StatusFail,
			Payload: reg.DispatchID,
			Error:   "invalid dispatch identifier",
		})
		return res, nil
	}

	l := &listener{
		name:         name,
		mode:         mode,
		dispatchID:   reg.DispatchID,
		ack:          ack,
		notification: notification,
		registeredAt: e.clock.Now(),
		box:          box,
	}
	res.EventListenerID = e.registry.add(name.ListenerID(idText), l)

	switch {
	case req.IsNotSupportedAPI:
		// The device accepted a listen it should have refused.
		res.EventListenerSchemaResult = e.validator.Validate(schema.ErrorVariant(), reg.DispatchID)
	case coerced:
		res.EventListenerSchemaResult = schema.Fail(schema.Issue{
			Keyword: "dispatchId",
			Message: fmt.Sprintf("listen resolved to %T, not a dispatch identifier", reg.DispatchID),
		})
	default:
		res.EventListenerSchemaResult = e.validator.Validate(ack, reg.Ack)
	}

	slog.Info("listener registered",
		"event", full,
		"listener_id", res.EventListenerID,
		"mode", mode,
		"status", res.EventListenerSchemaResult.Status,
	)
	e.record(Record{
		Op:         OpRegister,
		Event:      full,
		ListenerID: res.EventListenerID,
		Mode:       mode,
		Status:     res.EventListenerSchemaResult.Status,
		Payload:    reg.Ack,
	})
	return res, nil
}

// rejected builds the result of a failed listen call.
func (e *Engine) rejected(name eventname.Name, notSupported bool, err error) RegistrationResult {
	payload, wasRejection := dispatch.RejectionPayload(err)
	res := RegistrationResult{
		EventName:             name.Full,
		EventListenerResponse: ListenerResponse{Error: payload},
	}

	if notSupported {
		// Refusal is the expected outcome; it passes if the error is
		// well-formed.
		res.EventListenerSchemaResult = e.validator.Validate(schema.ErrorVariant(), payload)
		slog.Info("listen refused for unsupported api",
			"event", name.Full,
			"status", res.EventListenerSchemaResult.Status,
		)
		return res
	}

	res.EventListenerSchemaResult = schema.Fail()
	slog.Error("listener registration failed",
		"event", name.Full,
		"rejected", wasRejection,
		"error", err,
	)
	return res
}

// dispatchIDText renders a dispatch id for use in a listener id. ok is
// false when the id is not a scalar and legacy coercion is off; coerced is
// true when legacy coercion was applied.
func (e *Engine) dispatchIDText(id any) (text string, coerced, ok bool) {
	switch id.(type) {
	case nil, map[string]any, []any:
	default:
		if s, err := cast.ToStringE(id); err == nil && s != "" {
			return s, false, true
		}
	}
	if !e.legacyIDs {
		return "", false, false
	}
	return fmt.Sprintf("%v", id), true, true
}

// deliver returns the callback that writes notifications for name into box.
func (e *Engine) deliver(name eventname.Name, box *mailbox) dispatch.Callback {
	return func(payload any) {
		now := e.clock.Now()
		box.put(payload, now)

		id := box.ownerID()
		slog.Debug("notification received", "event", name.Full, "listener_id", id)
		e.record(Record{
			Op:         OpNotify,
			Event:      name.Full,
			ListenerID: id,
			Payload:    payload,
			At:         now,
		})
	}
}
