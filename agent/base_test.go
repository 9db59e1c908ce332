package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planmesh/planmesh/core"
)

// recordingBus captures published messages without routing them.
type recordingBus struct {
	mu        sync.Mutex
	published []core.Message
	failNext  bool
}

func (b *recordingBus) Publish(_ context.Context, msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return errors.New("bus unavailable")
	}
	b.published = append(b.published, msg)
	return nil
}

func (b *recordingBus) Subscribe(string, core.Handler) func() { return func() {} }

func (b *recordingBus) messages() []core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Message, len(b.published))
	copy(out, b.published)
	return out
}

func (b *recordingBus) byKind(kind core.MessageKind) []core.Message {
	var out []core.Message
	for _, m := range b.messages() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func TestRegisterRejectsInvalidKind(t *testing.T) {
	a := NewBase("scheduling")
	err := a.Register(core.MessageKind("gossip"), func(context.Context, core.Message) (*core.Message, error) {
		return nil, nil
	})
	require.Error(t, err)
	require.Error(t, a.Register(core.KindCommand, nil))
}

func TestRegisterLastWins(t *testing.T) {
	a := NewBase("scheduling")
	hits := []string{}
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		hits = append(hits, "first")
		return nil, nil
	}))
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		hits = append(hits, "second")
		return nil, nil
	}))

	_, err := a.Dispatch(context.Background(), core.NewCommand("x", a.ID(), "go"))
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, hits)
}

func TestDispatchDropsExpired(t *testing.T) {
	a := NewBase("scheduling")
	called := false
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		called = true
		return nil, nil
	}))

	msg := core.NewCommand("x", a.ID(), "go")
	past := time.Now().Add(-time.Minute)
	msg.ExpiresAt = &past

	resp, err := a.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.False(t, called, "handler ran for expired message")
	assert.Equal(t, 0, a.Metrics().MessagesReceived)
}

func TestDispatchNoHandlerDrops(t *testing.T) {
	a := NewBase("scheduling")
	resp, err := a.Dispatch(context.Background(), core.NewMessage("x", core.KindQuery, "get_status"))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestDispatchContainsHandlerError(t *testing.T) {
	bus := &recordingBus{}
	a := NewBase("venue")
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		return nil, core.NewFailure(core.FailureTimeout, "venue.search", "deadline exceeded")
	}))

	resp, err := a.Dispatch(context.Background(), core.NewCommand("x", a.ID(), "search_venues"))
	require.NoError(t, err, "handler error must not escape dispatch")
	assert.Nil(t, resp)
	assert.Equal(t, 1, a.Metrics().Errors)

	reports := bus.byKind(core.KindErrorReport)
	require.Len(t, reports, 1)
	assert.Equal(t, "venue", reports[0].PayloadString("agent_name"))
	assert.Equal(t, string(core.FailureTimeout), reports[0].PayloadString("kind"))
	assert.True(t, reports[0].IsBroadcast())
}

func TestDispatchReturnsHandlerResponse(t *testing.T) {
	a := NewBase("scheduling")
	require.NoError(t, a.Register(core.KindQuery, func(_ context.Context, msg core.Message) (*core.Message, error) {
		resp := msg.Reply(a.ID(), map[string]any{"status": "active"})
		return &resp, nil
	}))

	q := core.NewMessage("asker", core.KindQuery, "get_status")
	resp, err := a.Dispatch(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, q.ID, resp.CorrelationID)
}

func TestSendBuffersWithoutBus(t *testing.T) {
	a := NewBase("participant")
	msg := core.NewEventMessage(a.ID(), "reminder_sent")
	require.NoError(t, a.Send(context.Background(), msg))
	assert.Equal(t, 1, a.PendingCount())
	assert.Equal(t, 0, a.Metrics().MessagesSent)
}

func TestFlushPendingPreservesOrder(t *testing.T) {
	a := NewBase("participant")
	for _, subject := range []string{"one", "two", "three"} {
		require.NoError(t, a.Send(context.Background(), core.NewMessage(a.ID(), core.KindEvent, subject)))
	}

	bus := &recordingBus{}
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.NoError(t, a.FlushPending(context.Background()))

	msgs := bus.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Subject)
	assert.Equal(t, "two", msgs[1].Subject)
	assert.Equal(t, "three", msgs[2].Subject)
	assert.Equal(t, 0, a.PendingCount())
}

func TestFlushPendingDropsExpired(t *testing.T) {
	a := NewBase("participant")
	stale := core.NewMessage(a.ID(), core.KindEvent, "stale")
	past := time.Now().Add(-time.Minute)
	stale.ExpiresAt = &past
	require.NoError(t, a.Send(context.Background(), stale))
	require.NoError(t, a.Send(context.Background(), core.NewMessage(a.ID(), core.KindEvent, "fresh")))

	bus := &recordingBus{}
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.NoError(t, a.FlushPending(context.Background()))

	msgs := bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Subject)
}

func TestFlushPendingKeepsRemainderOnError(t *testing.T) {
	a := NewBase("participant")
	require.NoError(t, a.Send(context.Background(), core.NewMessage(a.ID(), core.KindEvent, "one")))
	require.NoError(t, a.Send(context.Background(), core.NewMessage(a.ID(), core.KindEvent, "two")))

	bus := &recordingBus{failNext: true}
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.Error(t, a.FlushPending(context.Background()))
	assert.Equal(t, 1, a.PendingCount())
}

func TestLifecycleStatusBroadcasts(t *testing.T) {
	bus := &recordingBus{}
	a := NewBase("calendar")
	assert.Equal(t, core.StatusInitializing, a.Status())

	require.NoError(t, a.Initialize(context.Background(), bus))
	assert.Equal(t, core.StatusIdle, a.Status())

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, core.StatusActive, a.Status())

	require.NoError(t, a.Stop(context.Background(), false))
	assert.Equal(t, core.StatusCompleted, a.Status())

	updates := bus.byKind(core.KindStatusUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, string(core.StatusActive), updates[0].PayloadString("status"))
	assert.Equal(t, string(core.StatusCompleted), updates[1].PayloadString("status"))
}

func TestInitializeTwiceFails(t *testing.T) {
	bus := &recordingBus{}
	a := NewBase("calendar")
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.Error(t, a.Initialize(context.Background(), bus))
}

func TestStartBeforeInitializeFails(t *testing.T) {
	a := NewBase("calendar")
	require.Error(t, a.Start(context.Background()))
}

func TestSendStampsCoordinationContext(t *testing.T) {
	bus := &recordingBus{}
	a := NewBase("scheduling")
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		return nil, nil
	}))

	cmd := core.NewCommand("coordinator", a.ID(), "start")
	cmd.SessionID = "sess-42"
	cmd.EventID = "evt-42"
	_, err := a.Dispatch(context.Background(), cmd)
	require.NoError(t, err)

	// outgoing messages without their own ids inherit the ones picked up
	// from inbound traffic
	require.NoError(t, a.Send(context.Background(), core.NewEventMessage(a.ID(), "schedule_ready")))
	msgs := bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sess-42", msgs[0].SessionID)
	assert.Equal(t, "evt-42", msgs[0].EventID)

	// explicit ids win over the agent context
	own := core.NewEventMessage(a.ID(), "schedule_ready")
	own.SessionID = "sess-other"
	own.EventID = "evt-other"
	require.NoError(t, a.Send(context.Background(), own))
	msgs = bus.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "sess-other", msgs[1].SessionID)
	assert.Equal(t, "evt-other", msgs[1].EventID)
}

func TestHeartbeatCarriesSessionContext(t *testing.T) {
	bus := &recordingBus{}
	a := NewBase("venue")
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		return nil, nil
	}))

	cmd := core.NewCommand("coordinator", a.ID(), "start")
	cmd.SessionID = "sess-7"
	cmd.EventID = "evt-7"
	_, err := a.Dispatch(context.Background(), cmd)
	require.NoError(t, err)

	require.NoError(t, a.Heartbeat(context.Background()))
	beats := bus.byKind(core.KindHeartbeat)
	require.Len(t, beats, 1)
	assert.Equal(t, "sess-7", beats[0].SessionID)
	assert.Equal(t, "evt-7", beats[0].EventID)
}

func TestOnErrorCallbacksInvoked(t *testing.T) {
	bus := &recordingBus{}
	a := NewBase("venue")
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		return nil, core.NewFailure(core.FailureConnection, "venue.search", "provider unreachable")
	}))

	var seenKinds []core.FailureKind
	var seenIDs []string
	a.OnError(func(_ context.Context, msg core.Message, err error) {
		seenKinds = append(seenKinds, core.KindOf(err))
		seenIDs = append(seenIDs, msg.ID)
	})
	a.OnError(nil) // nil registrations are ignored

	cmd := core.NewCommand("x", a.ID(), "search_venues")
	_, err := a.Dispatch(context.Background(), cmd)
	require.NoError(t, err)

	require.Len(t, seenKinds, 1)
	assert.Equal(t, core.FailureConnection, seenKinds[0])
	assert.Equal(t, cmd.ID, seenIDs[0])
	// the ERROR_REPORT broadcast still goes out after the callbacks
	assert.Len(t, bus.byKind(core.KindErrorReport), 1)
}

func TestHeartbeatCarriesMetrics(t *testing.T) {
	bus := &recordingBus{}
	a := NewBase("scheduling")
	require.NoError(t, a.Initialize(context.Background(), bus))
	require.NoError(t, a.Register(core.KindCommand, func(context.Context, core.Message) (*core.Message, error) {
		return nil, nil
	}))
	_, err := a.Dispatch(context.Background(), core.NewCommand("x", a.ID(), "go"))
	require.NoError(t, err)

	require.NoError(t, a.Heartbeat(context.Background()))
	beats := bus.byKind(core.KindHeartbeat)
	require.Len(t, beats, 1)
	assert.Equal(t, "scheduling", beats[0].PayloadString("agent_name"))
	assert.EqualValues(t, 1, beats[0].Payload["messages_received"])
}
