package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/eventname"
	"github.com/roach88/fca/internal/testutil"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    dispatch.Mode
		wantErr bool
	}{
		{"SDK", dispatch.ModeSDK, false},
		{"sdk", dispatch.ModeSDK, false},
		{" Transport ", dispatch.ModeTransport, false},
		{"TRANSPORT", dispatch.ModeTransport, false},
		{"", "", true},
		{"socket", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := dispatch.ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModuleTable_Missing(t *testing.T) {
	table := dispatch.ModuleTable{"core": {"device": testutil.NewFakeModule()}}

	_, err := table.Module("core", "lifecycle")
	require.Error(t, err)
	assert.True(t, dispatch.IsModuleNotFound(err))

	_, err = table.Module("discovery", "device")
	assert.True(t, dispatch.IsModuleNotFound(err))

	m, err := table.Module("core", "device")
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestSDKStrategy_Listen(t *testing.T) {
	mod := testutil.NewFakeModule()
	s := dispatch.SDKStrategy{Table: dispatch.ModuleTable{"mocksdk": {"mockmodule": mod}}}

	var got []any
	reg, err := s.Listen(context.Background(), eventname.Parse("mocksdk_mockModule.onModuleChanged"), func(p any) {
		got = append(got, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, reg.DispatchID)
	assert.Equal(t, map[string]any{"event": "mockmodule.onModulechanged", "listening": true}, reg.Ack)

	calls := mod.Calls("listen")
	require.Len(t, calls, 1)
	assert.Equal(t, "modulechanged", calls[0].Event)

	require.True(t, mod.Emit("modulechanged", "x"))
	assert.Equal(t, []any{"x"}, got)
}

func TestSDKStrategy_ListenRejected(t *testing.T) {
	mod := testutil.NewFakeModule().Script("notsupported", testutil.ListenOutcome{
		Reject: dispatch.RPCError(-52001, "Method not supported"),
	})
	s := dispatch.SDKStrategy{Table: dispatch.ModuleTable{"mocksdk": {"mockmodule": mod}}}

	_, err := s.Listen(context.Background(), eventname.Parse("mocksdk_mockmodule.onnotsupported"), func(any) {})
	require.Error(t, err)

	payload, rejected := dispatch.RejectionPayload(err)
	assert.True(t, rejected)
	assert.Equal(t, map[string]any{"code": -52001, "message": "Method not supported"}, payload)
}

func TestSDKStrategy_MissingModule(t *testing.T) {
	s := dispatch.SDKStrategy{Table: dispatch.ModuleTable{}}

	_, err := s.Listen(context.Background(), eventname.Parse("mocksdk_nope.onThing"), func(any) {})
	assert.True(t, dispatch.IsModuleNotFound(err))
	assert.True(t, dispatch.IsModuleNotFound(s.Clear(context.Background(), eventname.Parse("mocksdk_nope.onThing"))))
}

func TestSDKStrategy_Clear(t *testing.T) {
	mod := testutil.NewFakeModule()
	s := dispatch.SDKStrategy{Table: dispatch.ModuleTable{"mocksdk": {"mockmodule": mod}}}
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx, eventname.Parse("mocksdk_mockmodule.onmodulechanged")))
	require.NoError(t, s.ClearModule(ctx, "mocksdk", "mockmodule", nil))

	calls := mod.Calls("clear")
	require.Len(t, calls, 2)
	assert.Equal(t, "modulechanged", calls[0].Event)
	assert.Equal(t, "", calls[1].Event)
}

func TestTransportStrategy_Listen(t *testing.T) {
	tr := testutil.NewFakeTransport()
	s := dispatch.TransportStrategy{Transport: tr}

	reg, err := s.Listen(context.Background(), eventname.Parse("mocksdk_mockmodule.onmodulechanged"), func(any) {})
	require.NoError(t, err)

	assert.Equal(t, int64(1), reg.DispatchID)
	assert.Equal(t, map[string]any{"event": "mockmodule.onModulechanged", "listening": true}, reg.Ack)

	listens := tr.Listens()
	require.Len(t, listens, 1)
	assert.Equal(t, "mockmodule", listens[0].Module)
	assert.Equal(t, "onModulechanged", listens[0].Method)
}

func TestTransportStrategy_ListenRejected(t *testing.T) {
	tr := testutil.NewFakeTransport().Script("mockmodule", "onInvalidevent", testutil.ListenOutcome{
		Reject: dispatch.RPCError("", "Method not found"),
	})
	s := dispatch.TransportStrategy{Transport: tr}

	_, err := s.Listen(context.Background(), eventname.Parse("mocksdk_mockmodule.oninvalidevent"), func(any) {})
	payload, rejected := dispatch.RejectionPayload(err)
	assert.True(t, rejected)
	assert.Equal(t, "Method not found", payload.(map[string]any)["message"])
}

func TestTransportStrategy_NoTransport(t *testing.T) {
	s := dispatch.TransportStrategy{}
	_, err := s.Listen(context.Background(), eventname.Parse("a_b.onC"), func(any) {})
	assert.Error(t, err)
	assert.Error(t, s.Clear(context.Background(), eventname.Parse("a_b.onC")))
}

func TestTransportStrategy_Clear(t *testing.T) {
	tr := testutil.NewFakeTransport()
	s := dispatch.TransportStrategy{Transport: tr}

	require.NoError(t, s.Clear(context.Background(), eventname.Parse("mocksdk_mockmodule.onmodulechanged")))

	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testutil.SentMessage{
		Module: "mockmodule",
		Method: "onModulechanged",
		Params: map[string]any{"listen": false},
	}, sent[0])
}

func TestTransportStrategy_ClearModuleDedupes(t *testing.T) {
	tr := testutil.NewFakeTransport()
	s := dispatch.TransportStrategy{Transport: tr}

	names := []eventname.Name{
		eventname.Parse("mocksdk_mockmodule.onmodulechanged"),
		eventname.Parse("mocksdk_mockmodule.onModuleChanged"),
		eventname.Parse("mocksdk_mockmodule.oninvalidschema"),
	}
	require.NoError(t, s.ClearModule(context.Background(), "mocksdk", "mockmodule", names))

	sent := tr.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "onModulechanged", sent[0].Method)
	assert.Equal(t, "onInvalidschema", sent[1].Method)
}

func TestPending(t *testing.T) {
	t.Run("first completion wins", func(t *testing.T) {
		p := dispatch.NewPending(3)
		p.Resolve("ok")
		p.Reject(errors.New("late"))

		v, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})

	t.Run("context cancellation", func(t *testing.T) {
		p := dispatch.NewPending(4)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := p.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("abandoned wait runs cancel hook once", func(t *testing.T) {
		p := dispatch.NewPending(5)
		calls := 0
		p.OnCancel(func() { calls++ })
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = p.Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)

		// A response after abandonment is ignored.
		p.Resolve("late")
		v, err := p.Wait(context.Background())
		assert.Nil(t, v)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("completed request skips cancel hook", func(t *testing.T) {
		p := dispatch.NewPending(6)
		called := false
		p.OnCancel(func() { called = true })
		p.Resolve("ok")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		v, err := p.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.False(t, called)
	})
}

func TestTransportStrategy_ListenAbandoned(t *testing.T) {
	tr := testutil.NewFakeTransport().Script("mockmodule", "onModulechanged", testutil.ListenOutcome{Hang: true})
	s := dispatch.TransportStrategy{Transport: tr}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Listen(ctx, eventname.Parse("mocksdk_mockmodule.onmodulechanged"), func(any) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []int64{1}, tr.Abandoned())
	assert.False(t, tr.Emit("mockmodule", "onModulechanged", "late"))
}

func TestRejectionPayload_NonRejection(t *testing.T) {
	payload, rejected := dispatch.RejectionPayload(errors.New("socket closed"))
	assert.False(t, rejected)
	assert.Equal(t, map[string]any{"code": "FCAError", "message": "socket closed"}, payload)
}

func TestRejectionError_Message(t *testing.T) {
	assert.Equal(t, "rejected: Method not supported (code -52001)",
		dispatch.Reject(dispatch.RPCError(-52001, "Method not supported")).Error())
	assert.Equal(t, "rejected: 2", dispatch.Reject(2).Error())
}
