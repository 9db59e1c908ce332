package worker

import (
	"context"
	"fmt"

	"github.com/planmesh/planmesh/agent"
	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
)

// minConfirmed is how many confirmations the collection phase needs before
// it can complete; it mirrors the optimizer's attendance floor.
const minConfirmed = 2

// Participant collects and confirms event participants. On start it checks
// the response state: enough confirmations completes the phase, otherwise
// pending invitees get a reminder and the worker stays active until a
// finalize command or further responses arrive.
type Participant struct {
	*agent.BaseAgent
	docs   core.DocumentStore
	logger logging.Logger
}

// NewParticipant creates the participant collection worker.
func NewParticipant(docs core.DocumentStore, logger logging.Logger) *Participant {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	w := &Participant{
		BaseAgent: agent.NewBase("participant",
			agent.WithLogger(logger),
			agent.WithCapabilities(core.Capability{
				Name:        "participant_collection",
				Description: "collects invitee responses and declared availability",
				OutputKinds: []string{"participant_list", "availability"},
			}),
		),
		docs:   docs,
		logger: logger,
	}
	w.Register(core.KindCommand, w.handleCommand)
	w.Register(core.KindQuery, w.handleQuery)
	w.Register(core.KindEvent, w.handleEvent)
	return w
}

func (w *Participant) handleCommand(ctx context.Context, msg core.Message) (*core.Message, error) {
	switch msg.PayloadString("command") {
	case "start":
		return nil, w.collect(ctx, msg)
	case "send_reminders":
		_, err := w.remind(ctx, msg)
		return nil, err
	case "finalize":
		return nil, w.finalize(ctx, msg)
	default:
		return nil, core.NewFailure(core.FailureInvalidInput, "participant.command",
			fmt.Sprintf("unknown command %q", msg.PayloadString("command")))
	}
}

func (w *Participant) handleQuery(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.PayloadString("query") != "get_status" {
		return nil, nil
	}
	participants, err := w.load(ctx, msg.EventID)
	if err != nil {
		return nil, err
	}
	confirmed, declined, pending := tally(participants)
	resp := msg.Reply(w.ID(), map[string]any{
		"total":     len(participants),
		"confirmed": confirmed,
		"declined":  declined,
		"pending":   pending,
	})
	return &resp, nil
}

// handleEvent reacts to participant responses relayed by the adapter.
func (w *Participant) handleEvent(ctx context.Context, msg core.Message) (*core.Message, error) {
	if msg.PayloadString("event_type") != "participant_responded" {
		return nil, nil
	}
	return nil, w.collect(ctx, msg)
}

func (w *Participant) load(ctx context.Context, eventID string) ([]core.Participant, error) {
	var participants []core.Participant
	if err := w.docs.Query(ctx, collectionParticipants, map[string]any{"event_id": eventID}, &participants); err != nil {
		return nil, core.WrapFailure(core.FailureInternal, "participant.load", err)
	}
	return participants, nil
}

func tally(participants []core.Participant) (confirmed, declined, pending int) {
	for _, p := range participants {
		switch p.Status {
		case core.ParticipationConfirmed:
			confirmed++
		case core.ParticipationDeclined:
			declined++
		default:
			pending++
		}
	}
	return
}

// collect completes the phase when enough invitees confirmed, otherwise
// sends reminders and keeps waiting.
func (w *Participant) collect(ctx context.Context, msg core.Message) error {
	participants, err := w.load(ctx, msg.EventID)
	if err != nil {
		return err
	}
	confirmed, _, pending := tally(participants)
	if confirmed >= minConfirmed && pending == 0 {
		return w.complete(ctx, msg, participants)
	}
	if pending > 0 {
		if _, err := w.remind(ctx, msg); err != nil {
			return err
		}
	}
	w.logger.Info("participant collection in progress",
		"event_id", msg.EventID, "confirmed", confirmed, "pending", pending)
	return nil
}

// finalize closes collection with whoever confirmed, failing when the
// attendance floor is not met.
func (w *Participant) finalize(ctx context.Context, msg core.Message) error {
	participants, err := w.load(ctx, msg.EventID)
	if err != nil {
		return err
	}
	confirmed, _, _ := tally(participants)
	if confirmed < minConfirmed {
		return reportFailure(ctx, w.BaseAgent, msg, core.NewFailure(
			core.FailureInvalidInput, "participant.finalize",
			fmt.Sprintf("only %d confirmations, need %d", confirmed, minConfirmed)))
	}
	return w.complete(ctx, msg, participants)
}

func (w *Participant) complete(ctx context.Context, msg core.Message, participants []core.Participant) error {
	confirmedIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.Confirmed() {
			confirmedIDs = append(confirmedIDs, p.UserID)
		}
	}
	w.logger.Info("participant collection completed",
		"event_id", msg.EventID, "confirmed", len(confirmedIDs))
	return reportCompletion(ctx, w.BaseAgent, msg, map[string]any{
		"confirmed_count": len(confirmedIDs),
		"confirmed_users": confirmedIDs,
	})
}

// remind bumps the reminder counter for every pending invitee and persists
// the change, returning how many reminders went out.
func (w *Participant) remind(ctx context.Context, msg core.Message) (int, error) {
	participants, err := w.load(ctx, msg.EventID)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, p := range participants {
		if p.Status != core.ParticipationPending {
			continue
		}
		p.RemindersSent++
		if err := w.docs.Set(ctx, collectionParticipants, p.ID, p); err != nil {
			return sent, core.WrapFailure(core.FailureInternal, "participant.remind", err)
		}
		reminder := core.NewEventMessage(w.ID(), "reminder_sent")
		reminder.Payload["user_id"] = p.UserID
		reminder.Payload["reminders_sent"] = p.RemindersSent
		reminder.SessionID = msg.SessionID
		reminder.EventID = msg.EventID
		if err := w.Send(ctx, reminder); err != nil {
			return sent, err
		}
		sent++
	}
	w.logger.Info("reminders sent", "event_id", msg.EventID, "count", sent)
	return sent, nil
}
