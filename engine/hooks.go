package engine

import "github.com/planmesh/planmesh/core"

// Hooks are optional callbacks fired on coordination milestones. Nil fields
// are skipped. Hooks run synchronously on the engine's goroutine; long work
// belongs elsewhere.
type Hooks struct {
	// OnPhaseTransition fires after every accepted phase transition.
	OnPhaseTransition func(sessionID string, from, to core.Phase)

	// OnAgentCompleted fires when a worker reports completion.
	OnAgentCompleted func(sessionID, agent string, result map[string]any)

	// OnAgentFailed fires when a worker reports failure, before recovery
	// runs.
	OnAgentFailed func(sessionID, agent string, kind core.FailureKind, reason string)

	// OnManualIntervention fires when every recovery tier is exhausted.
	// The reference is an actionable pointer for the operator, never a raw
	// internal error.
	OnManualIntervention func(sessionID, agent, reference string)
}

func (h Hooks) phaseTransition(sessionID string, from, to core.Phase) {
	if h.OnPhaseTransition != nil {
		h.OnPhaseTransition(sessionID, from, to)
	}
}

func (h Hooks) agentCompleted(sessionID, agent string, result map[string]any) {
	if h.OnAgentCompleted != nil {
		h.OnAgentCompleted(sessionID, agent, result)
	}
}

func (h Hooks) agentFailed(sessionID, agent string, kind core.FailureKind, reason string) {
	if h.OnAgentFailed != nil {
		h.OnAgentFailed(sessionID, agent, kind, reason)
	}
}

func (h Hooks) manualIntervention(sessionID, agent, reference string) {
	if h.OnManualIntervention != nil {
		h.OnManualIntervention(sessionID, agent, reference)
	}
}
