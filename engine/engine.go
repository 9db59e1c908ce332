package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
)

// Worker is the engine's view of a coordination agent. *agent.BaseAgent and
// every concrete worker embedding it satisfy this.
type Worker interface {
	ID() string
	Name() string
	Initialize(ctx context.Context, bus core.MessageBus) error
	Start(ctx context.Context) error
	Stop(ctx context.Context, failed bool) error
	Heartbeat(ctx context.Context) error
}

// saveRetries bounds reload-and-retry cycles on version conflicts.
const saveRetries = 3

// Engine coordinates one or more sessions over a shared bus and worker set.
type Engine struct {
	bus      core.MessageBus
	sessions core.SessionStore
	docs     core.DocumentStore

	mu      sync.RWMutex
	workers map[string]Worker
	events  map[string]*core.Event

	coordinatorID string
	unsubscribe   func()
	hooks         Hooks
	automation    core.AutomationLevel
	sessionTTL    time.Duration
	logger        logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDocumentStore attaches a document store for domain records.
func WithDocumentStore(docs core.DocumentStore) Option {
	return func(e *Engine) { e.docs = docs }
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHooks installs milestone callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithAutomationLevel sets the automation level applied to new sessions.
func WithAutomationLevel(level core.AutomationLevel) Option {
	return func(e *Engine) { e.automation = level }
}

// WithSessionTTL sets the lifetime stamped onto new sessions as ExpiresAt.
// Zero means sessions never expire.
func WithSessionTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.sessionTTL = ttl
		}
	}
}

// New creates an Engine bound to a bus and session store and subscribes it
// as the coordinator so worker broadcasts reach it.
func New(bus core.MessageBus, sessions core.SessionStore, opts ...Option) *Engine {
	e := &Engine{
		bus:           bus,
		sessions:      sessions,
		workers:       make(map[string]Worker),
		events:        make(map[string]*core.Event),
		coordinatorID: core.NewID(),
		automation:    core.AutomationSemiAuto,
		logger:        logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.unsubscribe = bus.Subscribe(e.coordinatorID, e.dispatch)
	return e
}

// Close unsubscribes the engine from the bus.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// RegisterWorker adds a worker under its canonical name and initializes it
// against the engine's bus.
func (e *Engine) RegisterWorker(ctx context.Context, w Worker) error {
	e.mu.Lock()
	if _, dup := e.workers[w.Name()]; dup {
		e.mu.Unlock()
		return fmt.Errorf("register worker: %s already registered", w.Name())
	}
	e.workers[w.Name()] = w
	e.mu.Unlock()
	if err := w.Initialize(ctx, e.bus); err != nil {
		return fmt.Errorf("register worker %s: %w", w.Name(), err)
	}
	e.logger.Info("worker registered", "worker", w.Name())
	return nil
}

func (e *Engine) worker(name string) (Worker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[name]
	return w, ok
}

// StartCoordination creates a session for the event, registers its agents,
// moves it into ParticipantCollection and starts the participant worker.
func (e *Engine) StartCoordination(ctx context.Context, event *core.Event) (*core.Session, error) {
	if event == nil || event.ID == "" {
		return nil, fmt.Errorf("start coordination: missing event")
	}

	session := core.NewSession(event.ID)
	session.AutomationLevel = e.automation
	if e.sessionTTL > 0 {
		expires := time.Now().UTC().Add(e.sessionTTL)
		session.ExpiresAt = &expires
	}

	names := []string{AgentParticipant, AgentScheduling}
	if event.VenueRequired {
		names = append(names, AgentVenue)
	}
	names = append(names, AgentCalendar)
	for _, name := range names {
		if _, ok := e.worker(name); !ok {
			return nil, fmt.Errorf("start coordination: worker %s not registered", name)
		}
		session.AddAgent(name)
	}

	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("start coordination: %w", err)
	}
	e.mu.Lock()
	e.events[session.ID] = event
	e.mu.Unlock()

	if err := e.transition(ctx, session.ID, core.PhaseParticipantCollection); err != nil {
		return nil, err
	}
	if err := e.StartAgent(ctx, session.ID, AgentParticipant, "collect participants"); err != nil {
		return nil, err
	}
	return e.sessions.Get(ctx, session.ID)
}

// event returns the event a session coordinates, falling back to the
// document store when the engine did not create the session itself.
func (e *Engine) event(ctx context.Context, session *core.Session) (*core.Event, error) {
	e.mu.RLock()
	ev, ok := e.events[session.ID]
	e.mu.RUnlock()
	if ok {
		return ev, nil
	}
	if e.docs == nil {
		return nil, fmt.Errorf("event %s: unknown session %s", session.EventID, session.ID)
	}
	var loaded core.Event
	if err := e.docs.Get(ctx, "events", session.EventID, &loaded); err != nil {
		return nil, fmt.Errorf("event %s: %w", session.EventID, err)
	}
	e.mu.Lock()
	e.events[session.ID] = &loaded
	e.mu.Unlock()
	return &loaded, nil
}

// withSession loads, mutates and saves a session, retrying on version
// conflicts so concurrent writers serialize instead of clobbering each
// other.
func (e *Engine) withSession(ctx context.Context, id string, fn func(*core.Session) error) (*core.Session, error) {
	var lastErr error
	for attempt := 0; attempt < saveRetries; attempt++ {
		session, err := e.sessions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(session); err != nil {
			return nil, err
		}
		if err := e.sessions.Save(ctx, session); err != nil {
			if errors.Is(err, core.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return session, nil
	}
	return nil, fmt.Errorf("session %s: retries exhausted: %w", id, lastErr)
}

// transition moves a session to the next phase, failing on illegal
// transitions or while paused.
func (e *Engine) transition(ctx context.Context, sessionID string, next core.Phase) error {
	var from core.Phase
	_, err := e.withSession(ctx, sessionID, func(s *core.Session) error {
		from = s.Phase()
		if !s.TransitionTo(next) {
			if s.IsPaused() {
				return fmt.Errorf("transition %s -> %s: session %s is paused", from, next, sessionID)
			}
			return fmt.Errorf("transition %s -> %s: not allowed", from, next)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("phase transition rejected", "session_id", sessionID, "from", string(from), "to", string(next))
		return err
	}
	e.logger.Info("phase transition", "session_id", sessionID, "from", string(from), "to", string(next))
	e.hooks.phaseTransition(sessionID, from, next)
	return nil
}

// StartAgent starts the named worker for a session, enforcing the dependency
// graph: every dependency must exist on the session and be Completed,
// otherwise the worker is marked Waiting and an error is returned. Paused
// sessions refuse starts outright.
func (e *Engine) StartAgent(ctx context.Context, sessionID, name, task string) error {
	w, ok := e.worker(name)
	if !ok {
		return fmt.Errorf("start agent %s: not registered", name)
	}

	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsPaused() {
		return fmt.Errorf("start agent %s: session %s is paused", name, sessionID)
	}
	event, err := e.event(ctx, session)
	if err != nil {
		return err
	}

	for _, dep := range dependenciesFor(name, event.VenueRequired) {
		st, known := session.AgentState(dep)
		if !known || st.Status != core.StatusCompleted {
			if _, werr := e.withSession(ctx, sessionID, func(s *core.Session) error {
				s.MarkAgentWaiting(name)
				return nil
			}); werr != nil {
				e.logger.Warn("marking agent waiting failed", "agent", name, "error", werr)
			}
			if !known {
				return fmt.Errorf("start agent %s: dependency %s not registered", name, dep)
			}
			return fmt.Errorf("start agent %s: dependency %s is %s, not completed", name, dep, st.Status)
		}
	}

	if _, err := e.withSession(ctx, sessionID, func(s *core.Session) error {
		if !s.StartAgent(name, task) {
			return fmt.Errorf("start agent %s: not startable", name)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start agent %s: %w", name, err)
	}
	cmd := core.NewCommand(e.coordinatorID, w.ID(), "start")
	cmd.SessionID = sessionID
	cmd.EventID = session.EventID
	if task != "" {
		cmd.Payload["task"] = task
	}
	if err := e.bus.Publish(ctx, cmd); err != nil {
		return fmt.Errorf("start agent %s: %w", name, err)
	}
	e.logger.Info("agent started", "session_id", sessionID, "agent", name, "task", task)
	return nil
}

// dispatch is the engine's bus subscription: it reacts to completion and
// failure events, error reports and heartbeats from workers.
func (e *Engine) dispatch(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.IsExpired() {
		e.logger.Debug("dropping expired message", "message_id", msg.ID, "kind", string(msg.Kind))
		return nil, nil
	}
	switch msg.Kind {
	case core.KindEvent:
		switch msg.PayloadString("event_type") {
		case "agent_completed":
			e.handleAgentCompleted(ctx, msg)
		case "agent_failed":
			e.handleAgentFailed(ctx, msg)
		}
	case core.KindErrorReport:
		e.handleErrorReport(ctx, msg)
	case core.KindHeartbeat:
		e.handleHeartbeat(ctx, msg)
	}
	return nil, nil
}

func (e *Engine) handleAgentCompleted(ctx context.Context, msg core.Message) {
	name := msg.PayloadString("agent_name")
	if name == "" || msg.SessionID == "" {
		return
	}
	result, _ := msg.Payload["result"].(map[string]any)

	session, err := e.withSession(ctx, msg.SessionID, func(s *core.Session) error {
		if !s.CompleteAgent(name, result) {
			return fmt.Errorf("complete agent %s: not active", name)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("agent completion not recorded", "agent", name, "error", err)
		return
	}
	e.hooks.agentCompleted(msg.SessionID, name, result)
	e.logger.Info("agent completed", "session_id", msg.SessionID, "agent", name)

	event, err := e.event(ctx, session)
	if err != nil {
		e.logger.Error("event lookup failed", "session_id", msg.SessionID, "error", err)
		return
	}

	// eager advancement: one worker drives each phase, so a single
	// completion is the phase's exit condition; this is not an N-of-M gate
	next, ok := exitPhase(name, event.VenueRequired)
	if !ok {
		return
	}
	if err := e.transition(ctx, msg.SessionID, next); err != nil {
		return
	}
	e.advance(ctx, msg.SessionID, next)
}

// advance starts the worker driving the given phase when the session's
// automation level allows proceeding without a human check-in.
func (e *Engine) advance(ctx context.Context, sessionID string, phase core.Phase) {
	nextAgent, ok := agentForPhase(phase)
	if !ok {
		return
	}
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		e.logger.Warn("advance lookup failed", "session_id", sessionID, "error", err)
		return
	}
	if session.IsPaused() {
		return
	}
	if session.AutomationLevel != core.AutomationFullAuto && session.NeedsUserInteraction() {
		e.logger.Info("awaiting user confirmation", "session_id", sessionID, "phase", string(phase))
		return
	}
	if err := e.StartAgent(ctx, sessionID, nextAgent, ""); err != nil {
		e.logger.Warn("auto-start failed", "session_id", sessionID, "agent", nextAgent, "error", err)
	}
}

// Proceed resumes a workflow halted for user confirmation by starting the
// current phase's worker.
func (e *Engine) Proceed(ctx context.Context, sessionID string) error {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	name, ok := agentForPhase(session.Phase())
	if !ok {
		return fmt.Errorf("proceed: phase %s has no worker", session.Phase())
	}
	return e.StartAgent(ctx, sessionID, name, "")
}

func (e *Engine) handleAgentFailed(ctx context.Context, msg core.Message) {
	name := msg.PayloadString("agent_name")
	if name == "" || msg.SessionID == "" {
		return
	}
	kind := core.FailureKind(msg.PayloadString("kind"))
	if kind == "" {
		kind = core.FailureInternal
	}
	reason := msg.PayloadString("error")

	if _, err := e.withSession(ctx, msg.SessionID, func(s *core.Session) error {
		s.FailAgent(name, kind, reason)
		return nil
	}); err != nil {
		e.logger.Warn("agent failure not recorded", "agent", name, "error", err)
		return
	}
	e.hooks.agentFailed(msg.SessionID, name, kind, reason)
	e.recover(ctx, msg.SessionID, name, kind, reason)
}

func (e *Engine) handleErrorReport(ctx context.Context, msg core.Message) {
	name := msg.PayloadString("agent_name")
	if name == "" || msg.SessionID == "" {
		return
	}
	if _, err := e.withSession(ctx, msg.SessionID, func(s *core.Session) error {
		s.LogError(name, core.FailureKind(msg.PayloadString("kind")), msg.PayloadString("error"))
		return nil
	}); err != nil {
		e.logger.Warn("error report not recorded", "agent", name, "error", err)
	}
}

func (e *Engine) handleHeartbeat(ctx context.Context, msg core.Message) {
	name := msg.PayloadString("agent_name")
	if name == "" || msg.SessionID == "" {
		return
	}
	if _, err := e.withSession(ctx, msg.SessionID, func(s *core.Session) error {
		s.LogActivity("heartbeat: " + name)
		return nil
	}); err != nil {
		e.logger.Debug("heartbeat not recorded", "agent", name, "error", err)
	}
}

// Pause sets the session's pause flag. A paused session rejects both phase
// transitions and new agent starts until Resume.
func (e *Engine) Pause(ctx context.Context, sessionID, reason string) error {
	_, err := e.withSession(ctx, sessionID, func(s *core.Session) error {
		s.Pause(reason)
		return nil
	})
	return err
}

// Resume clears the session's pause flag.
func (e *Engine) Resume(ctx context.Context, sessionID string) error {
	_, err := e.withSession(ctx, sessionID, func(s *core.Session) error {
		s.Resume()
		return nil
	})
	return err
}

// Confirm acknowledges the final confirmation phase and advances the
// session to Announcement.
func (e *Engine) Confirm(ctx context.Context, sessionID string) error {
	return e.transition(ctx, sessionID, core.PhaseAnnouncement)
}

// Announce completes the workflow: the session transitions to Completed and
// the workers tracked by that session are stopped. Workers serving other
// sessions are left running.
func (e *Engine) Announce(ctx context.Context, sessionID string) error {
	if err := e.transition(ctx, sessionID, core.PhaseCompleted); err != nil {
		return err
	}
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, inst := range session.Agents {
		w, ok := e.worker(inst.AgentName)
		if !ok {
			continue
		}
		if err := w.Stop(ctx, false); err != nil {
			e.logger.Warn("worker stop failed", "worker", w.Name(), "error", err)
		}
	}
	return nil
}

// Status returns a compact summary of a session.
func (e *Engine) Status(ctx context.Context, sessionID string) (core.StatusSummary, error) {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return core.StatusSummary{}, err
	}
	return session.Summary(), nil
}

// HeartbeatAll invokes every registered worker's heartbeat. The host decides
// the cadence; the engine keeps no timer.
func (e *Engine) HeartbeatAll(ctx context.Context) {
	e.mu.RLock()
	workers := make([]Worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.RUnlock()
	for _, w := range workers {
		if err := w.Heartbeat(ctx); err != nil {
			e.logger.Debug("heartbeat failed", "worker", w.Name(), "error", err)
		}
	}
}
