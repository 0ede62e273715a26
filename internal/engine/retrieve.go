package engine

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/qri-io/jsonpointer"

	"github.com/roach88/fca/internal/schema"
)

// eventPointer addresses the listener id in a retrieval message.
var eventPointer = jsonpointer.Pointer{"params", "event"}

// Retrieval is the outcome of EventResponse.
//
// When nothing has been observed for the key it marshals as {"<key>": null}.
type Retrieval struct {
	// Key is the lookup key as supplied.
	Key string `json:"-"`

	// Observed is false when the key is unknown or its listener has not
	// received a notification yet.
	Observed bool `json:"-"`

	EventName         string        `json:"eventName"`
	EventListenerID   string        `json:"eventListenerId"`
	EventResponse     any           `json:"eventResponse"`
	EventSchemaResult schema.Result `json:"eventSchemaResult"`
	EventTime         time.Time     `json:"eventTime"`
}

// MarshalJSON implements json.Marshaler.
func (r Retrieval) MarshalJSON() ([]byte, error) {
	if !r.Observed {
		return json.Marshal(map[string]any{r.Key: nil})
	}
	type plain Retrieval
	return json.Marshal(plain(r))
}

// EventResponse reads the listener id at params.event of message and
// returns the latest notification for it. A message without params.event
// fails with an FCAError.
func (e *Engine) EventResponse(message map[string]any) (Retrieval, error) {
	raw, err := eventPointer.Eval(message)
	if err != nil {
		return Retrieval{}, newFCAError("event response fetch error: %v", err)
	}
	if raw == nil {
		return Retrieval{}, newFCAError("event response fetch error: message has no params.event")
	}
	key, ok := raw.(string)
	if !ok || key == "" {
		return Retrieval{}, newFCAError("event response fetch error: params.event must be a non-empty string, got %T", raw)
	}
	return e.Fetch(key), nil
}

// Fetch returns the latest notification for a listener id and validates it
// against the event's notification variant. Repeated calls without a new
// notification return the same value and time.
func (e *Engine) Fetch(listenerID string) Retrieval {
	out := Retrieval{Key: listenerID}

	l, ok := e.registry.get(listenerID)
	if !ok {
		slog.Debug("retrieval for unknown listener", "listener_id", listenerID)
		e.record(Record{Op: OpRetrieve, ListenerID: listenerID})
		return out
	}
	obs := l.box.load()
	if obs == nil {
		e.record(Record{Op: OpRetrieve, Event: l.name.Full, ListenerID: listenerID})
		return out
	}

	out.Observed = true
	out.EventName = l.name.Suffix()
	out.EventListenerID = l.id
	out.EventResponse = obs.value
	out.EventSchemaResult = e.validator.Validate(l.notification, obs.value)
	out.EventTime = obs.at

	e.record(Record{
		Op:         OpRetrieve,
		Event:      l.name.Full,
		ListenerID: listenerID,
		Status:     out.EventSchemaResult.Status,
		Payload:    obs.value,
	})
	return out
}
