package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/testutil"
)

func run(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()
	require.NoError(t, validateScenario(s))
	result, err := Run(context.Background(), s, opts...)
	require.NoError(t, err)
	return result
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	result := run(t, &Scenario{
		Name:        "mismatch",
		Description: "expects FAIL on a passing listen",
		Steps: []Step{
			{Listen: "mocksdk_mockmodule.onmodulechanged", Expect: "FAIL"},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1 (listen mocksdk_mockmodule.onmodulechanged): expected FAIL, got PASS")
}

func TestRun_InvalidAckFailsInTransportMode(t *testing.T) {
	result := run(t, &Scenario{
		Name:        "invalid_ack",
		Description: "a malformed acknowledgement is a FAIL verdict",
		Mode:        "Transport",
		Steps: []Step{
			{Listen: "mocksdk_mockmodule.oninvalidschema", Ack: map[string]any{"listening": "yes"}, Expect: "FAIL"},
		},
	})

	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "FAIL", result.Trace[0].Status)
	assert.Equal(t, 1, result.Listeners)
}

func TestRun_UnexpectedRejection(t *testing.T) {
	result := run(t, &Scenario{
		Name:        "rejected",
		Description: "a refused listen of a supported api fails",
		Steps: []Step{
			{Listen: "mocksdk_mockmodule.onmodulechanged", Reject: map[string]any{"code": -32601, "message": "Method not found"}, Expect: "FAIL"},
			{ClearAll: true, Expect: engine.StatusNoActiveListeners},
		},
	})

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Trace[0].ListenerID)
	assert.Equal(t, map[string]any{"code": -32601, "message": "Method not found"}, result.Trace[0].Value)
}

func TestRun_NotifyWithoutListenerIsAnError(t *testing.T) {
	result := run(t, &Scenario{
		Name:        "orphan_notify",
		Description: "notify before listen",
		Steps: []Step{
			{Notify: "mocksdk_mockmodule.onmodulechanged", Payload: map[string]any{"mockProperty": "x"}},
		},
	})

	assert.False(t, result.Pass)
	assert.Equal(t, ExpectError, result.Trace[0].Status)
	assert.Contains(t, result.Errors[0], "no listener on the device")
}

func TestRun_ClearMalformedExpectError(t *testing.T) {
	result := run(t, &Scenario{
		Name:        "bad_clear",
		Description: "clearing a malformed identifier errors",
		Steps: []Step{
			{Clear: "nodot", Expect: ExpectError},
		},
	})

	assert.True(t, result.Pass, result.Errors)
	assert.Contains(t, result.Trace[0].Error, "FCAError")
}

func TestRun_FetchUnknownListener(t *testing.T) {
	result := run(t, &Scenario{
		Name:        "unknown",
		Description: "fetching an unregistered id observes nothing",
		Steps: []Step{
			{Fetch: "mockmodule.onmodulechanged-99", Expect: ExpectNone},
		},
	})

	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "mockmodule.onmodulechanged-99", result.Trace[0].ListenerID)
}

func TestRun_RecorderReceivesRecords(t *testing.T) {
	rec := &engine.MemoryRecorder{}
	run(t, &Scenario{
		Name:        "recorded",
		Description: "records flow to the recorder",
		Steps: []Step{
			{Listen: "mocksdk_mockmodule.onmodulechanged", As: "l"},
			{Notify: "mocksdk_mockmodule.onmodulechanged", Payload: map[string]any{"mockProperty": "x"}},
			{Fetch: "l"},
			{ClearAll: true},
		},
	}, WithRecorder(rec))

	assert.Equal(t, []engine.Op{engine.OpRegister, engine.OpNotify, engine.OpRetrieve, engine.OpClearAll}, rec.Ops())
}

func TestRun_ScriptedStepsNeedSimulatedDevice(t *testing.T) {
	s := &Scenario{
		Name:        "live",
		Description: "notify against a real device",
		Steps:       []Step{{Notify: "mocksdk_mockmodule.onmodulechanged"}},
	}
	_, err := Run(context.Background(), s, WithTransport(testutil.NewFakeTransport()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs the simulated device")
}

func TestRun_FetchWaitsForLiveNotification(t *testing.T) {
	device := testutil.NewFakeTransport()
	s := &Scenario{
		Name:        "live_wait",
		Description: "fetch polls until the device fires",
		Mode:        "Transport",
		Steps: []Step{
			{Listen: "mocksdk_mockmodule.onmodulechanged", As: "l", Expect: "PASS"},
			{Fetch: "l", Wait: "5s", Expect: "PASS"},
		},
	}
	require.NoError(t, validateScenario(s))

	go func() {
		for !device.Emit("mockmodule", "onModulechanged", map[string]any{"mockProperty": "late"}) {
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := Run(context.Background(), s, WithTransport(device))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, map[string]any{"mockProperty": "late"}, result.Trace[1].Value)
}

func TestRun_EventMissingFromCatalog(t *testing.T) {
	s := &Scenario{
		Name:        "no_schema",
		Description: "an event missing from the catalog registers but fails validation",
		Steps: []Step{
			{Listen: "mocksdk_mockmodule.onunknown", Expect: "FAIL"},
		},
		Assertions: []Assertion{{Type: AssertFinalState, Listeners: intPtr(1)}},
	}
	result := run(t, s, WithCatalogs(testutil.MockSet()))
	assert.True(t, result.Pass, result.Errors)
}

func intPtr(n int) *int { return &n }
