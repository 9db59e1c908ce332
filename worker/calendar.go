package worker

import (
	"context"
	"sort"
	"time"

	"github.com/planmesh/planmesh/agent"
	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
)

// CalendarRequest is the structured request handed to a calendar provider.
type CalendarRequest struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
}

// CalendarService is the uniform contract for external calendar providers:
// success returns an opaque entry reference, failure returns a typed
// core.Failure with a machine-readable kind and optional retry-after hint.
// Callers never see provider-specific error codes.
type CalendarService interface {
	CreateEntry(ctx context.Context, req CalendarRequest) (ref string, err error)
}

// Calendar registers the scheduled event with the external calendar
// provider. Provider failures are reported with their failure kind so the
// engine can retry timeouts and reconnects structurally.
type Calendar struct {
	*agent.BaseAgent
	docs    core.DocumentStore
	service CalendarService
	logger  logging.Logger
}

// NewCalendar creates the calendar integration worker.
func NewCalendar(docs core.DocumentStore, service CalendarService, logger logging.Logger) *Calendar {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	w := &Calendar{
		BaseAgent: agent.NewBase("calendar",
			agent.WithLogger(logger),
			agent.WithCapabilities(core.Capability{
				Name:         "calendar_integration",
				Description:  "registers the scheduled event with the calendar provider",
				Dependencies: []string{"schedule_optimization", "venue_search"},
				OutputKinds:  []string{"calendar_ref"},
			}),
		),
		docs:    docs,
		service: service,
		logger:  logger,
	}
	w.Register(core.KindCommand, w.handleCommand)
	return w
}

func (w *Calendar) handleCommand(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.PayloadString("command") != "start" {
		return nil, core.NewFailure(core.FailureInvalidInput, "calendar.command",
			"unknown command "+msg.PayloadString("command"))
	}
	return nil, w.run(ctx, msg)
}

func (w *Calendar) run(ctx context.Context, msg core.Message) error {
	event, err := loadEvent(ctx, w.docs, msg)
	if err != nil {
		return err
	}
	if event.ScheduledAt == nil {
		return reportFailure(ctx, w.BaseAgent, msg, core.NewFailure(
			core.FailureInvalidInput, "calendar.create", "event has no scheduled time"))
	}

	duration := time.Duration(event.DurationMinutes) * time.Minute
	if duration == 0 {
		duration = time.Hour
	}
	req := CalendarRequest{
		EventID: event.ID,
		Title:   event.Title,
		Start:   *event.ScheduledAt,
		End:     event.ScheduledAt.Add(duration),
	}
	var participants []core.Participant
	if err := w.docs.Query(ctx, collectionParticipants, map[string]any{"event_id": event.ID}, &participants); err == nil {
		for _, p := range participants {
			if p.Confirmed() {
				req.Attendees = append(req.Attendees, p.UserID)
			}
		}
		sort.Strings(req.Attendees)
	}

	ref, err := w.service.CreateEntry(ctx, req)
	if err != nil {
		w.logger.Error("calendar entry creation failed",
			"event_id", event.ID, "kind", string(core.KindOf(err)), "error", err)
		return reportFailure(ctx, w.BaseAgent, msg, err)
	}

	event.CalendarRef = ref
	if err := w.docs.Set(ctx, collectionEvents, event.ID, event); err != nil {
		return core.WrapFailure(core.FailureInternal, "calendar.persist", err)
	}

	w.logger.Info("calendar entry created", "event_id", event.ID, "ref", ref)
	return reportCompletion(ctx, w.BaseAgent, msg, map[string]any{
		"calendar_ref": ref,
		"attendees":    len(req.Attendees),
	})
}
