package worker

import (
	"context"

	"github.com/planmesh/planmesh/agent"
	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
	"github.com/planmesh/planmesh/search"
)

// defaultBudgetPerPerson applies when no budget override is configured.
const defaultBudgetPerPerson = 3000

// Venue runs the resilient multi-source search for a location, persists the
// candidates and auto-selects the top-ranked one. Source failures degrade
// the result set; they never fail the phase — the manual fallback tier
// guarantees at least one candidate.
type Venue struct {
	*agent.BaseAgent
	docs     core.DocumentStore
	searcher *search.Searcher
	budget   int
	logger   logging.Logger
}

// VenueOption configures the venue worker.
type VenueOption func(*Venue)

// WithBudgetPerPerson sets the per-person budget in cents used for every
// venue query. Non-positive values keep the default.
func WithBudgetPerPerson(cents int) VenueOption {
	return func(w *Venue) {
		if cents > 0 {
			w.budget = cents
		}
	}
}

// NewVenue creates the venue coordination worker.
func NewVenue(docs core.DocumentStore, searcher *search.Searcher, logger logging.Logger, opts ...VenueOption) *Venue {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if searcher == nil {
		searcher = search.NewSearcher(search.WithSearchLogger(logger))
	}
	w := &Venue{
		BaseAgent: agent.NewBase("venue",
			agent.WithLogger(logger),
			agent.WithCapabilities(core.Capability{
				Name:         "venue_search",
				Description:  "searches venue providers and selects the best fit",
				Dependencies: []string{"schedule_optimization"},
				OutputKinds:  []string{"venue_candidates", "selected_venue"},
			}),
		),
		docs:     docs,
		searcher: searcher,
		budget:   defaultBudgetPerPerson,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.Register(core.KindCommand, w.handleCommand)
	w.Register(core.KindQuery, w.handleQuery)
	return w
}

func (w *Venue) handleCommand(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.PayloadString("command") != "start" {
		return nil, core.NewFailure(core.FailureInvalidInput, "venue.command",
			"unknown command "+msg.PayloadString("command"))
	}
	return nil, w.run(ctx, msg)
}

func (w *Venue) handleQuery(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.PayloadString("query") != "get_venue" {
		return nil, nil
	}
	var venue search.Venue
	if err := w.docs.Get(ctx, collectionVenues, msg.EventID, &venue); err != nil {
		return nil, core.WrapFailure(core.FailureNotFound, "venue.get_venue", err)
	}
	resp := msg.Reply(w.ID(), map[string]any{"venue": venue})
	return &resp, nil
}

func (w *Venue) run(ctx context.Context, msg core.Message) error {
	event, err := loadEvent(ctx, w.docs, msg)
	if err != nil {
		return err
	}

	var participants []core.Participant
	if err := w.docs.Query(ctx, collectionParticipants, map[string]any{"event_id": event.ID}, &participants); err != nil {
		return core.WrapFailure(core.FailureInternal, "venue.load_participants", err)
	}
	count := 0
	for _, p := range participants {
		if p.Confirmed() {
			count++
		}
	}

	features, radius := search.SettingsFor(event.Type)
	query := search.Query{
		EventID:          event.ID,
		EventType:        event.Type,
		ParticipantCount: count,
		BudgetPerPerson:  w.budget,
		RequiredFeatures: features,
		RadiusMeters:     radius,
	}

	results := w.searcher.Search(ctx, query)
	if len(results) == 0 {
		// the fallback tier makes this unreachable unless the generator
		// was overridden with an empty one
		return reportFailure(ctx, w.BaseAgent, msg, core.NewFailure(
			core.FailureInternal, "venue.search", "no candidates from any tier"))
	}

	best := results[0]
	best.Venue.EventID = event.ID
	if err := w.docs.Set(ctx, collectionVenues, event.ID, best.Venue); err != nil {
		return core.WrapFailure(core.FailureInternal, "venue.persist", err)
	}
	event.VenueID = best.Venue.ID
	if err := w.docs.Set(ctx, collectionEvents, event.ID, event); err != nil {
		return core.WrapFailure(core.FailureInternal, "venue.persist_event", err)
	}

	w.logger.Info("venue selected",
		"event_id", event.ID,
		"venue", best.Venue.Name,
		"source", best.Source,
		"suitability", best.Suitability,
		"manual_confirmation", best.NeedsManualConfirmation())
	return reportCompletion(ctx, w.BaseAgent, msg, map[string]any{
		"venue_id":            best.Venue.ID,
		"venue_name":          best.Venue.Name,
		"source":              best.Source,
		"suitability":         best.Suitability,
		"manual_confirmation": best.NeedsManualConfirmation(),
		"candidate_count":     len(results),
	})
}
