package worker

import (
	"context"

	"github.com/planmesh/planmesh/agent"
	"github.com/planmesh/planmesh/core"
)

// Document collections shared by the workers.
const (
	collectionEvents       = "events"
	collectionParticipants = "participants"
	collectionSchedules    = "schedules"
	collectionVenues       = "venues"
)

// reportCompletion broadcasts the agent_completed event the engine advances
// phases on.
func reportCompletion(ctx context.Context, a *agent.BaseAgent, cause core.Message, result map[string]any) error {
	msg := core.NewEventMessage(a.ID(), "agent_completed")
	msg.Payload["agent_name"] = a.Name()
	if result != nil {
		msg.Payload["result"] = result
	}
	msg.SessionID = cause.SessionID
	msg.EventID = cause.EventID
	return a.Send(ctx, msg)
}

// reportFailure broadcasts the agent_failed event carrying the failure kind
// so the engine can pick a recovery action structurally.
func reportFailure(ctx context.Context, a *agent.BaseAgent, cause core.Message, err error) error {
	msg := core.NewEventMessage(a.ID(), "agent_failed")
	msg.Payload["agent_name"] = a.Name()
	msg.Payload["kind"] = string(core.KindOf(err))
	msg.Payload["error"] = err.Error()
	msg.Priority = core.PriorityHigh
	msg.SessionID = cause.SessionID
	msg.EventID = cause.EventID
	return a.Send(ctx, msg)
}

// loadEvent fetches the coordinated event for a command message.
func loadEvent(ctx context.Context, docs core.DocumentStore, msg core.Message) (*core.Event, error) {
	if msg.EventID == "" {
		return nil, core.NewFailure(core.FailureInvalidInput, "worker.load_event", "message carries no event id")
	}
	var event core.Event
	if err := docs.Get(ctx, collectionEvents, msg.EventID, &event); err != nil {
		return nil, core.WrapFailure(core.FailureNotFound, "worker.load_event", err)
	}
	return &event, nil
}
