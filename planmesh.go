// Package planmesh provides a high-level façade over the coordination
// engine and its four specialist workers (participants, scheduling, venue
// search, calendar integration). Most applications interact with this
// package by:
//  1. Creating a PlanMesh via New() (optionally overriding the default
//     in-memory stores, the venue sources or the calendar provider)
//  2. Starting a planning session for an event with Plan()
//  3. Driving confirmations with Proceed(), Confirm() and Announce()
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable document
// store, real venue sources and a structured logger.
package planmesh

import (
	"context"
	"time"

	"github.com/planmesh/planmesh/bus"
	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/engine"
	"github.com/planmesh/planmesh/logging"
	"github.com/planmesh/planmesh/schedule"
	"github.com/planmesh/planmesh/search"
	"github.com/planmesh/planmesh/store"
	"github.com/planmesh/planmesh/worker"
)

// Options configures the PlanMesh instance.
type Options struct {
	// Stores (default to in-memory implementations if not provided)
	SessionStore  core.SessionStore
	DocumentStore core.DocumentStore

	// VenueSources are the providers queried during venue search. With no
	// sources the searcher still produces the manual fallback tier.
	VenueSources []search.Source

	// SourceExclusions statically excludes named sources per event type.
	SourceExclusions map[core.EventType][]string

	// Calendar is the provider used for calendar integration. Defaults to
	// a document-store-backed local calendar.
	Calendar worker.CalendarService

	// AutomationLevel applied to new sessions.
	AutomationLevel core.AutomationLevel

	// SessionTTL is stamped onto new sessions as their expiry. Zero means
	// sessions never expire.
	SessionTTL time.Duration

	// BudgetPerPerson is the per-person venue budget in cents. Zero keeps
	// the worker default.
	BudgetPerPerson int

	// Hooks receive engine lifecycle notifications.
	Hooks engine.Hooks

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// PlanMesh is the high-level façade aggregating the bus, the engine and
// the specialist workers.
type PlanMesh struct {
	opts   Options
	bus    *bus.InMemoryBus
	engine *engine.Engine
}

// New creates a PlanMesh instance with optional overrides. Any unset
// service is initialized with an in-memory implementation, and the four
// specialist workers are registered with the engine.
func New(ctx context.Context, optFns ...func(o *Options)) (*PlanMesh, error) {
	opts := Options{
		SessionStore:    store.NewSessionStore(),
		DocumentStore:   store.NewDocumentStore(),
		AutomationLevel: core.AutomationSemiAuto,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Calendar == nil {
		opts.Calendar = worker.NewLocalCalendar(opts.DocumentStore)
	}

	b := bus.New(bus.WithLogger(opts.Logger))
	eng := engine.New(b, opts.SessionStore,
		engine.WithDocumentStore(opts.DocumentStore),
		engine.WithLogger(opts.Logger),
		engine.WithHooks(opts.Hooks),
		engine.WithAutomationLevel(opts.AutomationLevel),
		engine.WithSessionTTL(opts.SessionTTL),
	)

	searcher := search.NewSearcher(
		search.WithSources(opts.VenueSources...),
		search.WithExclusions(opts.SourceExclusions),
		search.WithSearchLogger(opts.Logger),
	)
	workers := []engine.Worker{
		worker.NewParticipant(opts.DocumentStore, opts.Logger),
		worker.NewScheduling(opts.DocumentStore, schedule.NewOptimizer(schedule.WithLogger(opts.Logger)), opts.Logger),
		worker.NewVenue(opts.DocumentStore, searcher, opts.Logger,
			worker.WithBudgetPerPerson(opts.BudgetPerPerson)),
		worker.NewCalendar(opts.DocumentStore, opts.Calendar, opts.Logger),
	}
	for _, w := range workers {
		if err := eng.RegisterWorker(ctx, w); err != nil {
			return nil, err
		}
	}

	return &PlanMesh{opts: opts, bus: b, engine: eng}, nil
}

// Plan starts a coordination session for the given event.
func (m *PlanMesh) Plan(ctx context.Context, event *core.Event) (*core.Session, error) {
	return m.engine.StartCoordination(ctx, event)
}

// Proceed resumes a session waiting on a user confirmation point.
func (m *PlanMesh) Proceed(ctx context.Context, sessionID string) error {
	return m.engine.Proceed(ctx, sessionID)
}

// Pause suspends phase transitions and agent starts for the session.
func (m *PlanMesh) Pause(ctx context.Context, sessionID, reason string) error {
	return m.engine.Pause(ctx, sessionID, reason)
}

// Resume lifts a pause.
func (m *PlanMesh) Resume(ctx context.Context, sessionID string) error {
	return m.engine.Resume(ctx, sessionID)
}

// Confirm accepts the final plan and moves the session to announcement.
func (m *PlanMesh) Confirm(ctx context.Context, sessionID string) error {
	return m.engine.Confirm(ctx, sessionID)
}

// Announce broadcasts the final plan and completes the session.
func (m *PlanMesh) Announce(ctx context.Context, sessionID string) error {
	return m.engine.Announce(ctx, sessionID)
}

// Status returns a point-in-time summary of the session.
func (m *PlanMesh) Status(ctx context.Context, sessionID string) (core.StatusSummary, error) {
	return m.engine.Status(ctx, sessionID)
}

// HeartbeatAll asks every registered worker to publish a heartbeat.
func (m *PlanMesh) HeartbeatAll(ctx context.Context) {
	m.engine.HeartbeatAll(ctx)
}

// PruneSessions removes expired sessions when the configured store supports
// pruning and returns how many were deleted.
func (m *PlanMesh) PruneSessions(ctx context.Context) int {
	type pruner interface {
		PruneExpired(ctx context.Context) int
	}
	if p, ok := m.opts.SessionStore.(pruner); ok {
		return p.PruneExpired(ctx)
	}
	return 0
}

// Documents exposes the underlying document store, mainly so callers can
// seed participants and inspect results.
func (m *PlanMesh) Documents() core.DocumentStore { return m.opts.DocumentStore }

// Close detaches the engine from the bus.
func (m *PlanMesh) Close() { m.engine.Close() }
