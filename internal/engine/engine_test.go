package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fca/internal/catalog"
	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/schema"
	"github.com/roach88/fca/internal/testutil"
)

// fixture is an engine wired to fake modules and a fake transport.
type fixture struct {
	engine    *engine.Engine
	module    *testutil.FakeModule // mocksdk/mockmodule and sdk/modulex
	events    *testutil.FakeModule // mocksdk/mockeventmodule
	transport *testutil.FakeTransport
	mode      *engine.ModeSwitch
	clock     *testutil.DeterministicClock
	records   *engine.MemoryRecorder
}

func newFixture(t *testing.T, opts ...engine.EngineOption) *fixture {
	t.Helper()

	f := &fixture{
		module:    testutil.NewFakeModule(),
		events:    testutil.NewFakeModule(),
		transport: testutil.NewFakeTransport(),
		mode:      engine.NewModeSwitch(dispatch.ModeSDK),
		clock:     testutil.NewDeterministicClock(),
		records:   &engine.MemoryRecorder{},
	}

	set := testutil.MockSet()
	set["sdk"] = testutil.MockCatalog()

	base := []engine.EngineOption{
		engine.WithModules(dispatch.ModuleTable{
			testutil.MockSurface: {"mockmodule": f.module, "mockeventmodule": f.events},
			"sdk":                {"modulex": f.module},
		}),
		engine.WithTransport(f.transport),
		engine.WithCatalogs(set),
		engine.WithModeSource(f.mode),
		engine.WithClock(f.clock),
		engine.WithRecorder(f.records),
	}
	f.engine = engine.New(append(base, opts...)...)
	return f
}

func (f *fixture) register(t *testing.T, event string, notSupported bool) engine.RegistrationResult {
	t.Helper()
	res, err := f.engine.NorthBoundEventHandling(context.Background(), engine.NewRequest(event, notSupported))
	require.NoError(t, err)
	return res
}

func TestEngine_New_Defaults(t *testing.T) {
	e := engine.New()

	assert.Equal(t, dispatch.ModeSDK, e.Mode())
	assert.Equal(t, 0, e.Len())

	// No modules configured: registration fails but is reported, not raised.
	res, err := e.NorthBoundEventHandling(context.Background(), engine.NewRequest("device.onNameChanged", false))
	require.NoError(t, err)
	assert.False(t, res.Registered())
	assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
}

func TestEngine_SdkTypeAndModule(t *testing.T) {
	e := engine.New()

	tests := []struct {
		in      string
		sdkType string
		module  string
	}{
		{"a.b", "core", "a"},
		{"x_a.b", "x", "a"},
		{"", "core", ""},
		{"mockModule.mockMethod", "core", "mockmodule"},
		{"mocksdk_mockModule.mockMethod", "mocksdk", "mockmodule"},
		{"mockMethod", "core", "mockmethod"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			sdkType, module := e.SdkTypeAndModule(tt.in)
			assert.Equal(t, tt.sdkType, sdkType)
			assert.Equal(t, tt.module, module)
		})
	}
}

func TestRegister_SDKMode(t *testing.T) {
	f := newFixture(t)

	res := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)

	assert.Equal(t, "mocksdk_mockmodule.onmodulechanged", res.EventName)
	assert.Equal(t, "mockmodule.onmodulechanged-1", res.EventListenerID)
	assert.Equal(t, engine.ListenerResponse{ListenerResponse: 1, Error: nil}, res.EventListenerResponse)
	assert.Equal(t, schema.StatusPass, res.EventListenerSchemaResult.Status)
	assert.Equal(t, schema.TitleListenResponse, res.EventListenerSchemaResult.Variant)

	calls := f.module.Calls("listen")
	require.Len(t, calls, 1)
	assert.Equal(t, "modulechanged", calls[0].Event)
	assert.Empty(t, f.transport.Listens())
}

func TestRegister_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.module.Script("changed", testutil.ListenOutcome{Value: 7})

	res := f.register(t, "sdk_moduleX.onChanged", false)
	require.Equal(t, "moduleX.onChanged-7", res.EventListenerID)
	assert.Equal(t, schema.StatusPass, res.EventListenerSchemaResult.Status)

	require.True(t, f.module.Emit("changed", map[string]any{"foo": "bar"}))

	got := f.engine.Fetch("moduleX.onChanged-7")
	require.True(t, got.Observed)
	assert.Equal(t, "changed", got.EventName)
	assert.Equal(t, "moduleX.onChanged-7", got.EventListenerID)
	assert.Equal(t, map[string]any{"foo": "bar"}, got.EventResponse)
	assert.Equal(t, schema.StatusPass, got.EventSchemaResult.Status)
	assert.Equal(t, schema.TitleEventResponse, got.EventSchemaResult.Variant)
	assert.True(t, got.EventTime.After(testutil.DefaultEpoch))
}

func TestRegister_SameEventTwice(t *testing.T) {
	f := newFixture(t)

	first := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)
	require.True(t, f.module.Emit("modulechanged", map[string]any{"mockProperty": "one"}))

	second := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)

	assert.Equal(t, "mockmodule.onmodulechanged-1", first.EventListenerID)
	assert.Equal(t, "mockmodule.onmodulechanged-2", second.EventListenerID)
	assert.Equal(t, 2, f.engine.Len())

	// Each listener owns its own mailbox.
	assert.True(t, f.engine.Fetch(first.EventListenerID).Observed)
	assert.False(t, f.engine.Fetch(second.EventListenerID).Observed)
}

func TestRegister_DuplicateDispatchID(t *testing.T) {
	f := newFixture(t)
	f.module.Script("modulechanged", testutil.ListenOutcome{Value: 5})

	first := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)
	second := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)

	assert.Equal(t, "mockmodule.onmodulechanged-5", first.EventListenerID)
	assert.Equal(t, "mockmodule.onmodulechanged-5~2", second.EventListenerID)
	assert.Equal(t, 2, f.engine.Len())
}

func TestRegister_TransportMode(t *testing.T) {
	f := newFixture(t)
	f.mode.Set(dispatch.ModeTransport)

	res := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)

	assert.Equal(t, "mockmodule.onmodulechanged-1", res.EventListenerID)
	assert.Equal(t, engine.ListenerResponse{ListenerResponse: int64(1)}, res.EventListenerResponse)
	assert.Equal(t, schema.StatusPass, res.EventListenerSchemaResult.Status)

	listens := f.transport.Listens()
	require.Len(t, listens, 1)
	assert.Equal(t, "mockmodule", listens[0].Module)
	assert.Equal(t, "onModulechanged", listens[0].Method)
	assert.Empty(t, f.module.Calls("listen"))
}

func TestRegister_TransportBadAck(t *testing.T) {
	f := newFixture(t)
	f.mode.Set(dispatch.ModeTransport)
	f.transport.Script("mockmodule", "onModulechanged", testutil.ListenOutcome{Value: "success"})

	res := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)

	// Registered, but the acknowledgement is not a ListenResponse.
	assert.True(t, res.Registered())
	assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
	assert.NotEmpty(t, res.EventListenerSchemaResult.Errors)
}

func TestRegister_ModeReadPerCall(t *testing.T) {
	f := newFixture(t)

	f.register(t, "mocksdk_mockmodule.onmodulechanged", false)
	f.mode.Set(dispatch.ModeTransport)
	f.register(t, "mocksdk_mockmodule.onmodulechanged", false)

	assert.Len(t, f.module.Calls("listen"), 1)
	assert.Len(t, f.transport.Listens(), 1)

	modes := []dispatch.Mode{}
	for _, l := range f.engine.Listeners() {
		modes = append(modes, l.Mode)
	}
	assert.Equal(t, []dispatch.Mode{dispatch.ModeSDK, dispatch.ModeTransport}, modes)
}

func TestRegister_NotSupported(t *testing.T) {
	t.Run("well-formed rejection passes", func(t *testing.T) {
		f := newFixture(t)
		f.module.Script("notsupported", testutil.ListenOutcome{
			Reject: dispatch.RPCError(-52001, "Method not supported"),
		})

		res := f.register(t, "mocksdk_mockmodule.onnotsupported", true)

		assert.False(t, res.Registered())
		assert.Nil(t, res.EventListenerResponse.ListenerResponse)
		assert.Equal(t, map[string]any{"code": -52001, "message": "Method not supported"}, res.EventListenerResponse.Error)
		assert.Equal(t, schema.StatusPass, res.EventListenerSchemaResult.Status)
		assert.Equal(t, 0, f.engine.Len())
	})

	t.Run("malformed rejection fails and is returned verbatim", func(t *testing.T) {
		f := newFixture(t)
		f.module.Script("notsupported", testutil.ListenOutcome{Reject: "nope"})

		res := f.register(t, "mocksdk_mockmodule.onnotsupported", true)

		assert.False(t, res.Registered())
		assert.Equal(t, "nope", res.EventListenerResponse.Error)
		assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
	})

	t.Run("successful listen fails", func(t *testing.T) {
		f := newFixture(t)

		res := f.register(t, "mocksdk_mockmodule.onmodulechanged", true)

		assert.True(t, res.Registered())
		assert.Equal(t, engine.ListenerResponse{ListenerResponse: 1}, res.EventListenerResponse)
		assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
		assert.Equal(t, "Error", res.EventListenerSchemaResult.Variant)
	})
}

func TestRegister_UnexpectedRejection(t *testing.T) {
	f := newFixture(t)
	f.module.Script("invalidevent", testutil.ListenOutcome{
		Reject: dispatch.RPCError("", "Method not found"),
	})

	res := f.register(t, "mocksdk_mockmodule.oninvalidevent", false)

	assert.False(t, res.Registered())
	assert.Equal(t, engine.ListenerResponse{
		ListenerResponse: nil,
		Error:            map[string]any{"code": "", "message": "Method not found"},
	}, res.EventListenerResponse)
	assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
	assert.Empty(t, res.EventListenerSchemaResult.Errors)
	assert.Equal(t, 0, f.engine.Len())
}

func TestRegister_MissingModule(t *testing.T) {
	f := newFixture(t)

	res := f.register(t, "mocksdk_unknown.onthing", false)

	assert.False(t, res.Registered())
	payload, ok := res.EventListenerResponse.Error.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "FCAError", payload["code"])
	assert.Contains(t, payload["message"], "module not found")
	assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
}

func TestRegister_NonScalarDispatchID(t *testing.T) {
	t.Run("rejected by default", func(t *testing.T) {
		f := newFixture(t)
		f.module.Script("invalidschema", testutil.ListenOutcome{Value: map[string]any{"listen": 2}})

		res := f.register(t, "mocksdk_mockmodule.oninvalidschema", false)

		assert.False(t, res.Registered())
		assert.Equal(t, engine.ListenerResponse{Error: map[string]any{"listen": 2}}, res.EventListenerResponse)
		assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
		assert.Equal(t, 0, f.engine.Len())
	})

	t.Run("coerced when legacy ids are on", func(t *testing.T) {
		f := newFixture(t, engine.WithLegacyIDCoercion(true))
		f.module.Script("invalidschema", testutil.ListenOutcome{Value: map[string]any{"listen": 2}})

		res := f.register(t, "mocksdk_mockmodule.oninvalidschema", false)

		assert.Equal(t, "mockmodule.oninvalidschema-map[listen:2]", res.EventListenerID)
		assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
		assert.Equal(t, 1, f.engine.Len())
	})
}

func TestRegister_StringDispatchID(t *testing.T) {
	f := newFixture(t)
	f.module.Script("modulechanged", testutil.ListenOutcome{Value: "abc"})

	res := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)
	assert.Equal(t, "mockmodule.onmodulechanged-abc", res.EventListenerID)
	assert.Equal(t, schema.StatusPass, res.EventListenerSchemaResult.Status)
}

func TestRegister_NoCatalogEntry(t *testing.T) {
	f := newFixture(t, engine.WithCatalogs(catalog.Set{}))

	res := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)

	assert.True(t, res.Registered())
	assert.Equal(t, schema.StatusFail, res.EventListenerSchemaResult.Status)
	require.Len(t, res.EventListenerSchemaResult.Errors, 1)
	assert.Equal(t, "no schema", res.EventListenerSchemaResult.Errors[0].Message)
}

func TestRegister_MissingEvent(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.NorthBoundEventHandling(context.Background(), engine.Request{})
	require.Error(t, err)
	assert.True(t, engine.IsFCAError(err))
	assert.Empty(t, f.module.Calls("listen"))
}

func TestRegistrationResult_JSON(t *testing.T) {
	f := newFixture(t)
	f.module.Script("notsupported", testutil.ListenOutcome{
		Reject: dispatch.RPCError(-52001, "Method not supported"),
	})

	res := f.register(t, "mocksdk_mockmodule.onnotsupported", true)
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Contains(t, got, "eventListenerId")
	assert.Nil(t, got["eventListenerId"])
	assert.Equal(t, "mocksdk_mockmodule.onnotsupported", got["eventName"])
	assert.Equal(t, map[string]any{
		"listenerResponse": nil,
		"error":            map[string]any{"code": float64(-52001), "message": "Method not supported"},
	}, got["eventListenerResponse"])
	assert.Equal(t, "PASS", got["eventListenerSchemaResult"].(map[string]any)["status"])

	ok := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)
	raw, err = json.Marshal(ok)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"eventListenerId":"mockmodule.onmodulechanged-1"`)
}

func TestRecords(t *testing.T) {
	f := newFixture(t)

	res := f.register(t, "mocksdk_mockmodule.onmodulechanged", false)
	f.module.Emit("modulechanged", map[string]any{"mockProperty": "x"})
	f.engine.Fetch(res.EventListenerID)
	_, err := f.engine.ClearAllListeners(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []engine.Op{engine.OpRegister, engine.OpNotify, engine.OpRetrieve, engine.OpClearAll}, f.records.Ops())

	recs := f.records.Records()
	for i, r := range recs {
		assert.Equal(t, int64(i+1), r.Seq)
	}
	assert.Equal(t, res.EventListenerID, recs[1].ListenerID)
	assert.Equal(t, schema.StatusPass, recs[2].Status)
}
