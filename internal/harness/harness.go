package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/fca/internal/catalog"
	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/eventname"
	"github.com/roach88/fca/internal/testutil"
)

// DefaultPollInterval is how often a fetch step with a wait re-reads the
// listener.
const DefaultPollInterval = 10 * time.Millisecond

// Option configures a run.
type Option func(*options)

type options struct {
	transport dispatch.Transport
	recorder  engine.Recorder
	catalogs  catalog.Set
	logger    *slog.Logger
}

// WithTransport runs against a real device instead of the simulated one.
func WithTransport(t dispatch.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithRecorder receives every engine record of the run.
func WithRecorder(r engine.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithCatalogs replaces the scenario's catalogs.
func WithCatalogs(s catalog.Set) Option {
	return func(o *options) {
		o.catalogs = s
	}
}

// WithLogger sets the harness logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Harness executes the steps of one scenario against one engine.
type Harness struct {
	engine  *engine.Engine
	device  *testutil.FakeTransport // nil against a real device
	aliases map[string]string
	logger  *slog.Logger
}

// Run executes a scenario against a fresh engine and returns the result.
//
// Expectation and assertion failures are reported in the result. The
// returned error is reserved for scenarios that cannot run: unreadable
// catalogs, or steps that script the device when a real transport is used.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	set := o.catalogs
	if set == nil {
		if len(scenario.Catalogs) > 0 {
			loaded, err := catalog.LoadSet(scenario.Catalogs)
			if err != nil {
				return nil, fmt.Errorf("failed to load catalogs: %w", err)
			}
			set = loaded
		} else {
			set = testutil.MockSet()
		}
	}

	h := &Harness{aliases: make(map[string]string), logger: o.logger}
	transport := o.transport
	if transport == nil {
		h.device = testutil.NewFakeTransport()
		transport = h.device
	} else {
		for i, step := range scenario.Steps {
			if step.scripted() {
				return nil, fmt.Errorf("step %d: %s needs the simulated device", i+1, step.Op())
			}
		}
	}

	engOpts := []engine.EngineOption{
		engine.WithModules(dispatch.TableFromSet(set, transport)),
		engine.WithTransport(transport),
		engine.WithCatalogs(set),
		engine.WithMode(scenario.DispatchMode()),
		engine.WithLegacyIDCoercion(scenario.LegacyIDCoercion),
	}
	if h.device != nil {
		engOpts = append(engOpts, engine.WithClock(testutil.NewDeterministicClock()))
	}
	if o.recorder != nil {
		engOpts = append(engOpts, engine.WithRecorder(o.recorder))
	}
	h.engine = engine.New(engOpts...)

	result := NewResult()
	for _, step := range scenario.Steps {
		ev := result.add(h.execute(ctx, step))
		if msg := checkExpectation(step, ev); msg != "" {
			result.AddError(msg)
		}
		h.logger.Info("step executed",
			"scenario", scenario.Name,
			"seq", ev.Seq,
			"op", ev.Op,
			"target", ev.Target,
			"status", ev.Status,
		)
	}
	result.Listeners = h.engine.Len()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step and returns its unsequenced trace event.
func (h *Harness) execute(ctx context.Context, step Step) TraceEvent {
	ev := TraceEvent{Op: step.Op(), Target: step.Target()}

	switch ev.Op {
	case OpListen:
		n := eventname.Parse(step.Listen)
		switch {
		case step.Ack != nil:
			h.device.Script(n.Module, n.MethodName(), testutil.ListenOutcome{Value: step.Ack})
		case step.Reject != nil:
			h.device.Script(n.Module, n.MethodName(), testutil.ListenOutcome{Reject: step.Reject})
		}
		res, err := h.engine.NorthBoundEventHandling(ctx, engine.NewRequest(step.Listen, step.NotSupported))
		if err != nil {
			return errored(ev, err)
		}
		ev.ListenerID = res.EventListenerID
		ev.Status = string(res.EventListenerSchemaResult.Status)
		if res.Registered() {
			ev.Value = res.EventListenerResponse.ListenerResponse
		} else {
			ev.Value = res.EventListenerResponse.Error
		}
		if step.As != "" {
			h.aliases[step.As] = res.EventListenerID
		}

	case OpNotify:
		n := eventname.Parse(step.Notify)
		ev.Value = step.Payload
		if !h.device.Emit(n.Module, n.MethodName(), step.Payload) {
			return errored(ev, fmt.Errorf("no listener on the device for %s", step.Notify))
		}

	case OpFetch:
		id, ok := h.aliases[step.Fetch]
		if !ok {
			id = step.Fetch
		}
		ev.ListenerID = id
		r, err := h.fetch(ctx, id, step.Wait)
		if err != nil {
			return errored(ev, err)
		}
		if !r.Observed {
			ev.Status = ExpectNone
			break
		}
		ev.Status = string(r.EventSchemaResult.Status)
		ev.Value = r.EventResponse

	case OpClear:
		cleared, err := h.engine.ClearEventListeners(ctx, step.Clear)
		if err != nil {
			return errored(ev, err)
		}
		ev.Value = cleared

	case OpClearAll:
		status, err := h.engine.ClearAllListeners(ctx)
		ev.Value = status
		if err != nil {
			return errored(ev, err)
		}
	}
	return ev
}

// fetch reads a listener, polling until a notification is observed when
// wait is set.
func (h *Harness) fetch(ctx context.Context, id, wait string) (engine.Retrieval, error) {
	r := h.engine.Fetch(id)
	if wait == "" || r.Observed {
		return r, nil
	}
	d, err := time.ParseDuration(wait)
	if err != nil {
		return r, err
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return h.engine.Fetch(id), nil
		case <-ticker.C:
			if r = h.engine.Fetch(id); r.Observed {
				return r, nil
			}
		}
	}
}

func errored(ev TraceEvent, err error) TraceEvent {
	ev.Status = ExpectError
	ev.Error = err.Error()
	return ev
}

// checkExpectation compares a step outcome with its expectation and
// returns a message on mismatch.
func checkExpectation(step Step, ev TraceEvent) string {
	mismatch := func(want, got string) string {
		return fmt.Sprintf("step %d (%s %s): expected %s, got %s", ev.Seq, ev.Op, ev.Target, want, got)
	}

	if ev.Status == ExpectError && step.Expect != ExpectError {
		want := step.Expect
		if want == "" {
			want = "success"
		}
		return mismatch(want, "error: "+ev.Error)
	}

	switch ev.Op {
	case OpListen, OpFetch, OpClear:
		if step.Expect != "" && ev.Status != step.Expect {
			return mismatch(step.Expect, orNone(ev.Status))
		}
	case OpClearAll:
		if step.Expect == ExpectError && ev.Status != ExpectError {
			return mismatch(ExpectError, fmt.Sprint(ev.Value))
		}
		if step.Expect != "" && step.Expect != ExpectError && ev.Value != step.Expect {
			return mismatch(step.Expect, fmt.Sprint(ev.Value))
		}
	}
	return ""
}

func orNone(status string) string {
	if status == "" {
		return "success"
	}
	return status
}
