package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planmesh/planmesh/bus"
	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/store"
)

// stubWorker satisfies Worker without doing any real work. It subscribes on
// Initialize so commands addressed to it are routable, and swallows them.
type stubWorker struct {
	id      string
	name    string
	started int
	stopped int
}

func newStubWorker(name string) *stubWorker {
	return &stubWorker{id: core.NewID(), name: name}
}

func (w *stubWorker) ID() string   { return w.id }
func (w *stubWorker) Name() string { return w.name }

func (w *stubWorker) Initialize(_ context.Context, b core.MessageBus) error {
	b.Subscribe(w.id, func(context.Context, core.Message) (*core.Message, error) {
		return nil, nil
	})
	return nil
}

func (w *stubWorker) Start(_ context.Context) error {
	w.started++
	return nil
}

func (w *stubWorker) Stop(_ context.Context, _ bool) error {
	w.stopped++
	return nil
}

func (w *stubWorker) Heartbeat(_ context.Context) error { return nil }

type testRig struct {
	engine   *Engine
	bus      *bus.InMemoryBus
	sessions *store.InMemorySessionStore
	workers  map[string]*stubWorker
}

func newTestRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()
	b := bus.New()
	sessions := store.NewSessionStore()
	e := New(b, sessions, opts...)
	t.Cleanup(e.Close)

	rig := &testRig{engine: e, bus: b, sessions: sessions, workers: map[string]*stubWorker{}}
	for _, name := range []string{AgentParticipant, AgentScheduling, AgentVenue, AgentCalendar} {
		w := newStubWorker(name)
		require.NoError(t, e.RegisterWorker(context.Background(), w))
		rig.workers[name] = w
	}
	return rig
}

func (r *testRig) startSession(t *testing.T, event *core.Event) *core.Session {
	t.Helper()
	session, err := r.engine.StartCoordination(context.Background(), event)
	require.NoError(t, err)
	return session
}

// completeAgent emits the completion event a worker would broadcast.
func (r *testRig) completeAgent(t *testing.T, sessionID, name string) {
	t.Helper()
	msg := core.NewEventMessage(r.workers[name].id, "agent_completed")
	msg.Payload["agent_name"] = name
	msg.SessionID = sessionID
	require.NoError(t, r.bus.Publish(context.Background(), msg))
}

func (r *testRig) failAgent(t *testing.T, sessionID, name string, kind core.FailureKind) {
	t.Helper()
	msg := core.NewEventMessage(r.workers[name].id, "agent_failed")
	msg.Payload["agent_name"] = name
	msg.Payload["kind"] = string(kind)
	msg.Payload["error"] = "simulated failure"
	msg.SessionID = sessionID
	require.NoError(t, r.bus.Publish(context.Background(), msg))
}

func (r *testRig) session(t *testing.T, id string) *core.Session {
	t.Helper()
	s, err := r.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestStartCoordination(t *testing.T) {
	rig := newTestRig(t)
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	assert.Equal(t, core.PhaseParticipantCollection, session.Phase())
	assert.Equal(t, 1, rig.workers[AgentParticipant].started)

	state, ok := session.AgentState(AgentParticipant)
	require.True(t, ok)
	assert.Equal(t, core.StatusActive, state.Status)
	assert.Len(t, session.Checkpoints, 1)
}

func TestStartAgentDependencyNotCompleted(t *testing.T) {
	// venue's dependency scheduling is merely active, so starting venue
	// must fail and mark it waiting
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	rig.completeAgent(t, session.ID, AgentParticipant)
	// scheduling is now active in ScheduleCoordination

	err := rig.engine.StartAgent(context.Background(), session.ID, AgentVenue, "")
	require.Error(t, err)

	state, ok := rig.session(t, session.ID).AgentState(AgentVenue)
	require.True(t, ok)
	assert.Equal(t, core.StatusWaiting, state.Status)
	assert.Equal(t, 0, rig.workers[AgentVenue].started)
}

func TestEagerPhaseAdvancement(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	rig.completeAgent(t, session.ID, AgentParticipant)
	s := rig.session(t, session.ID)
	assert.Equal(t, core.PhaseScheduleCoordination, s.Phase())
	assert.Equal(t, 1, rig.workers[AgentScheduling].started)

	rig.completeAgent(t, session.ID, AgentScheduling)
	s = rig.session(t, session.ID)
	assert.Equal(t, core.PhaseVenueCoordination, s.Phase())
	assert.Equal(t, 1, rig.workers[AgentVenue].started)

	rig.completeAgent(t, session.ID, AgentVenue)
	rig.completeAgent(t, session.ID, AgentCalendar)
	s = rig.session(t, session.ID)
	assert.Equal(t, core.PhaseFinalConfirmation, s.Phase())

	// one checkpoint per accepted transition
	assert.Len(t, s.Checkpoints, 5)
}

func TestVenueSkipForVenuelessEvent(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Study group", core.EventStudy, "user-1")
	event.VenueRequired = false
	session := rig.startSession(t, event)

	rig.completeAgent(t, session.ID, AgentParticipant)
	rig.completeAgent(t, session.ID, AgentScheduling)

	s := rig.session(t, session.ID)
	assert.Equal(t, core.PhaseCalendarIntegration, s.Phase())
	assert.Equal(t, 0, rig.workers[AgentVenue].started)
	assert.Equal(t, 1, rig.workers[AgentCalendar].started)
}

func TestIllegalTransitionRejected(t *testing.T) {
	// a session at Announcement cannot go back to ParticipantCollection
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	for _, name := range []string{AgentParticipant, AgentScheduling, AgentVenue, AgentCalendar} {
		rig.completeAgent(t, session.ID, name)
	}
	require.NoError(t, rig.engine.Confirm(context.Background(), session.ID))
	require.Equal(t, core.PhaseAnnouncement, rig.session(t, session.ID).Phase())

	err := rig.engine.transition(context.Background(), session.ID, core.PhaseParticipantCollection)
	require.Error(t, err)
	assert.Equal(t, core.PhaseAnnouncement, rig.session(t, session.ID).Phase())
}

func TestAnnounceCompletesAndStopsWorkers(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	for _, name := range []string{AgentParticipant, AgentScheduling, AgentVenue, AgentCalendar} {
		rig.completeAgent(t, session.ID, name)
	}
	require.NoError(t, rig.engine.Confirm(context.Background(), session.ID))
	require.NoError(t, rig.engine.Announce(context.Background(), session.ID))

	s := rig.session(t, session.ID)
	assert.Equal(t, core.PhaseCompleted, s.Phase())
	for name, w := range rig.workers {
		assert.Equal(t, 1, w.stopped, "worker %s not stopped", name)
	}
}

func TestPauseBlocksTransitionsAndStarts(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	require.NoError(t, rig.engine.Pause(context.Background(), session.ID, "user requested"))

	// completion arrives while paused: recorded, but no transition and no
	// new start
	rig.completeAgent(t, session.ID, AgentParticipant)
	s := rig.session(t, session.ID)
	assert.Equal(t, core.PhaseParticipantCollection, s.Phase())
	assert.Equal(t, 0, rig.workers[AgentScheduling].started)

	err := rig.engine.StartAgent(context.Background(), session.ID, AgentScheduling, "")
	require.Error(t, err)

	require.NoError(t, rig.engine.Resume(context.Background(), session.ID))
	require.NoError(t, rig.engine.StartAgent(context.Background(), session.ID, AgentScheduling, ""))
	assert.Equal(t, 1, rig.workers[AgentScheduling].started)
}

func TestRecoveryRetryOnTimeout(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	rig.failAgent(t, session.ID, AgentParticipant, core.FailureTimeout)

	s := rig.session(t, session.ID)
	state, _ := s.AgentState(AgentParticipant)
	assert.Equal(t, core.StatusActive, state.Status, "timed-out agent not restarted")
	assert.Equal(t, 2, rig.workers[AgentParticipant].started)
	assert.Equal(t, 0, s.UnresolvedErrorCount(), "retry should resolve the error entry")
	assert.False(t, s.IsPaused())
}

func TestRecoveryReconnectOnConnection(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	rig.failAgent(t, session.ID, AgentParticipant, core.FailureConnection)

	state, _ := rig.session(t, session.ID).AgentState(AgentParticipant)
	assert.Equal(t, core.StatusActive, state.Status)
	assert.Equal(t, 2, rig.workers[AgentParticipant].started)
}

func TestRecoveryManualIntervention(t *testing.T) {
	var escalated []string
	rig := newTestRig(t,
		WithAutomationLevel(core.AutomationFullAuto),
		WithHooks(Hooks{
			OnManualIntervention: func(sessionID, agent, reference string) {
				escalated = append(escalated, agent+": "+reference)
			},
		}),
	)
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	rig.failAgent(t, session.ID, AgentParticipant, core.FailureInvalidInput)

	s := rig.session(t, session.ID)
	assert.True(t, s.IsPaused())
	assert.Equal(t, 1, s.UnresolvedErrorCount())
	require.Len(t, escalated, 1)
	assert.Contains(t, escalated[0], "manual intervention required")
	assert.Equal(t, 1, rig.workers[AgentParticipant].started, "no restart on manual intervention")
}

func TestSemiAutoAwaitsConfirmation(t *testing.T) {
	rig := newTestRig(t) // default semi_auto
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	rig.completeAgent(t, session.ID, AgentParticipant)
	s := rig.session(t, session.ID)
	assert.Equal(t, core.PhaseScheduleCoordination, s.Phase())
	assert.Equal(t, 0, rig.workers[AgentScheduling].started, "semi-auto must wait for confirmation")
	assert.True(t, s.NeedsUserInteraction())

	require.NoError(t, rig.engine.Proceed(context.Background(), session.ID))
	assert.Equal(t, 1, rig.workers[AgentScheduling].started)
}

func TestPhaseTransitionHook(t *testing.T) {
	var transitions []string
	rig := newTestRig(t,
		WithAutomationLevel(core.AutomationFullAuto),
		WithHooks(Hooks{
			OnPhaseTransition: func(_ string, from, to core.Phase) {
				transitions = append(transitions, string(from)+">"+string(to))
			},
		}),
	)
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)
	rig.completeAgent(t, session.ID, AgentParticipant)

	require.Contains(t, transitions, "initialization>participant_collection")
	require.Contains(t, transitions, "participant_collection>schedule_coordination")
}

func TestExpiredCompletionIgnored(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	msg := core.NewEventMessage(rig.workers[AgentParticipant].id, "agent_completed")
	msg.Payload["agent_name"] = AgentParticipant
	msg.SessionID = session.ID
	past := time.Now().UTC().Add(-time.Minute)
	msg.ExpiresAt = &past
	require.NoError(t, rig.bus.Publish(context.Background(), msg))

	s := rig.session(t, session.ID)
	assert.Equal(t, core.PhaseParticipantCollection, s.Phase(), "expired completion must not advance the phase")
	assert.Equal(t, 0, rig.workers[AgentScheduling].started)

	state, _ := s.AgentState(AgentParticipant)
	assert.Equal(t, core.StatusActive, state.Status)
}

func TestRecoveryEscalatesAfterRepeatedFailures(t *testing.T) {
	var escalated int
	rig := newTestRig(t,
		WithAutomationLevel(core.AutomationFullAuto),
		WithHooks(Hooks{
			OnManualIntervention: func(string, string, string) { escalated++ },
		}),
	)
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	// a worker that times out on every attempt gets a bounded number of
	// restarts, then the session pauses for manual intervention
	for i := 0; i < maxRecoveryAttempts; i++ {
		rig.failAgent(t, session.ID, AgentParticipant, core.FailureTimeout)
	}

	s := rig.session(t, session.ID)
	assert.True(t, s.IsPaused())
	assert.Equal(t, 1, escalated)
	assert.Equal(t, maxRecoveryAttempts, rig.workers[AgentParticipant].started,
		"restarts must stop at the attempt bound")

	state, _ := s.AgentState(AgentParticipant)
	assert.Equal(t, maxRecoveryAttempts, state.ErrorCount)
}

func TestSessionTTLStampsExpiry(t *testing.T) {
	rig := newTestRig(t, WithSessionTTL(time.Hour))
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	require.NotNil(t, session.ExpiresAt)
	assert.True(t, session.ExpiresAt.After(time.Now().UTC()))
	assert.True(t, session.ExpiresAt.Before(time.Now().UTC().Add(2*time.Hour)))
	assert.False(t, session.IsExpired())
}

func TestAnnounceStopsOnlySessionWorkers(t *testing.T) {
	rig := newTestRig(t, WithAutomationLevel(core.AutomationFullAuto))
	event := core.NewEvent("Study group", core.EventStudy, "user-1")
	event.VenueRequired = false
	session := rig.startSession(t, event)

	for _, name := range []string{AgentParticipant, AgentScheduling, AgentCalendar} {
		rig.completeAgent(t, session.ID, name)
	}
	require.NoError(t, rig.engine.Confirm(context.Background(), session.ID))
	require.NoError(t, rig.engine.Announce(context.Background(), session.ID))

	assert.Equal(t, core.PhaseCompleted, rig.session(t, session.ID).Phase())
	for _, name := range []string{AgentParticipant, AgentScheduling, AgentCalendar} {
		assert.Equal(t, 1, rig.workers[name].stopped, "worker %s not stopped", name)
	}
	assert.Equal(t, 0, rig.workers[AgentVenue].stopped, "venue worker is not part of this session")
}

func TestStatusSummary(t *testing.T) {
	rig := newTestRig(t)
	event := core.NewEvent("Team dinner", core.EventDining, "user-1")
	session := rig.startSession(t, event)

	sum, err := rig.engine.Status(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, sum.SessionID)
	assert.Equal(t, core.PhaseParticipantCollection, sum.CurrentPhase)
	assert.Equal(t, 1, sum.ActiveAgents)
}
