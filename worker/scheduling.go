package worker

import (
	"context"
	"sort"

	"github.com/planmesh/planmesh/agent"
	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
	"github.com/planmesh/planmesh/schedule"
)

// Scheduling runs the time-slot optimizer over the confirmed participants'
// declared availability, persists the ranked result and reports the chosen
// slot. An empty result is reported as an explicit no-selection outcome,
// not a failure.
type Scheduling struct {
	*agent.BaseAgent
	docs      core.DocumentStore
	optimizer *schedule.Optimizer
	logger    logging.Logger
}

// NewScheduling creates the schedule coordination worker.
func NewScheduling(docs core.DocumentStore, optimizer *schedule.Optimizer, logger logging.Logger) *Scheduling {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if optimizer == nil {
		optimizer = schedule.NewOptimizer(schedule.WithLogger(logger))
	}
	w := &Scheduling{
		BaseAgent: agent.NewBase("scheduling",
			agent.WithLogger(logger),
			agent.WithCapabilities(core.Capability{
				Name:         "schedule_optimization",
				Description:  "ranks candidate time slots against declared availability",
				Dependencies: []string{"participant_collection"},
				OutputKinds:  []string{"schedule_options", "selected_schedule"},
			}),
		),
		docs:      docs,
		optimizer: optimizer,
		logger:    logger,
	}
	w.Register(core.KindCommand, w.handleCommand)
	w.Register(core.KindQuery, w.handleQuery)
	return w
}

func (w *Scheduling) handleCommand(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.PayloadString("command") != "start" {
		return nil, core.NewFailure(core.FailureInvalidInput, "scheduling.command",
			"unknown command "+msg.PayloadString("command"))
	}
	return nil, w.run(ctx, msg)
}

func (w *Scheduling) handleQuery(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.PayloadString("query") != "get_schedule" {
		return nil, nil
	}
	var result schedule.Result
	if err := w.docs.Get(ctx, collectionSchedules, msg.EventID, &result); err != nil {
		return nil, core.WrapFailure(core.FailureNotFound, "scheduling.get_schedule", err)
	}
	resp := msg.Reply(w.ID(), map[string]any{"result": result})
	return &resp, nil
}

func (w *Scheduling) run(ctx context.Context, msg core.Message) error {
	event, err := loadEvent(ctx, w.docs, msg)
	if err != nil {
		return err
	}

	var participants []core.Participant
	if err := w.docs.Query(ctx, collectionParticipants, map[string]any{"event_id": event.ID}, &participants); err != nil {
		return core.WrapFailure(core.FailureInternal, "scheduling.load_participants", err)
	}

	availability := make([]schedule.Availability, 0, len(participants))
	for _, p := range participants {
		if !p.Confirmed() {
			continue
		}
		availability = append(availability, schedule.Availability{UserID: p.UserID, Slots: p.Slots})
	}
	// query order is unspecified; sort so analysis output is stable
	sort.Slice(availability, func(i, j int) bool { return availability[i].UserID < availability[j].UserID })

	result := w.optimizer.Optimize(event.Type, availability)
	if err := w.docs.Set(ctx, collectionSchedules, event.ID, result); err != nil {
		return core.WrapFailure(core.FailureInternal, "scheduling.persist", err)
	}

	if result.Selected == nil {
		w.logger.Warn("no schedule selected", "event_id", event.ID)
		return reportCompletion(ctx, w.BaseAgent, msg, map[string]any{
			"selected": false,
			"message":  result.Message,
		})
	}

	// stamp the event so downstream phases see the chosen time
	event.ScheduledAt = &result.Selected.Slot.Start
	event.DurationMinutes = int(result.Selected.Slot.Duration().Minutes())
	if err := w.docs.Set(ctx, collectionEvents, event.ID, event); err != nil {
		return core.WrapFailure(core.FailureInternal, "scheduling.persist_event", err)
	}

	w.logger.Info("schedule selected",
		"event_id", event.ID,
		"start", result.Selected.Slot.Start,
		"score", result.Selected.TotalScore,
		"reasoning", result.Selected.Reasoning)
	return reportCompletion(ctx, w.BaseAgent, msg, map[string]any{
		"selected":  true,
		"start":     result.Selected.Slot.Start,
		"end":       result.Selected.Slot.End,
		"score":     result.Selected.TotalScore,
		"reasoning": result.Selected.Reasoning,
	})
}
