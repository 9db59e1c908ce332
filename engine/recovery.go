package engine

import (
	"context"
	"fmt"

	"github.com/planmesh/planmesh/core"
)

// RecoveryAction is what the engine decided to do about a failed agent.
type RecoveryAction string

const (
	RecoveryRetry              RecoveryAction = "retry"
	RecoveryReconnect          RecoveryAction = "reconnect"
	RecoveryManualIntervention RecoveryAction = "manual_intervention"
)

// maxRecoveryAttempts caps automatic restarts per agent. Once an agent has
// failed this many times the engine stops retrying and escalates.
const maxRecoveryAttempts = 3

// actionFor maps a failure kind to its recovery action. The mapping is
// structural over the closed failure taxonomy; error text is never
// inspected.
func actionFor(kind core.FailureKind) RecoveryAction {
	switch kind {
	case core.FailureTimeout:
		return RecoveryRetry
	case core.FailureConnection:
		return RecoveryReconnect
	default:
		return RecoveryManualIntervention
	}
}

// recover applies the recovery policy to a failed agent. Retry and
// reconnect put the agent back into a startable state and restart it;
// everything else pauses the session and raises a manual-intervention
// signal with an actionable reference rather than a raw error.
func (e *Engine) recover(ctx context.Context, sessionID, name string, kind core.FailureKind, reason string) {
	action := actionFor(kind)
	e.logger.Warn("recovering failed agent",
		"session_id", sessionID, "agent", name,
		"kind", string(kind), "action", string(action))

	switch action {
	case RecoveryRetry, RecoveryReconnect:
		if session, err := e.sessions.Get(ctx, sessionID); err == nil {
			if st, ok := session.AgentState(name); ok && st.ErrorCount >= maxRecoveryAttempts {
				e.logger.Warn("recovery attempts exhausted",
					"session_id", sessionID, "agent", name, "error_count", st.ErrorCount)
				e.escalate(ctx, sessionID, name, reason)
				return
			}
		}
		if _, err := e.withSession(ctx, sessionID, func(s *core.Session) error {
			s.MarkAgentWaiting(name)
			s.ResolveErrors(name, string(action))
			return nil
		}); err != nil {
			e.logger.Error("recovery bookkeeping failed", "agent", name, "error", err)
			return
		}
		if err := e.StartAgent(ctx, sessionID, name, ""); err != nil {
			e.logger.Error("recovery restart failed", "agent", name, "error", err)
			e.escalate(ctx, sessionID, name, reason)
		}
	default:
		e.escalate(ctx, sessionID, name, reason)
	}
}

// escalate pauses the session and surfaces the manual-intervention signal.
func (e *Engine) escalate(ctx context.Context, sessionID, name, reason string) {
	reference := fmt.Sprintf("manual intervention required: session %s, agent %s", sessionID, name)
	if _, err := e.withSession(ctx, sessionID, func(s *core.Session) error {
		s.Pause(reference)
		return nil
	}); err != nil {
		e.logger.Error("escalation pause failed", "session_id", sessionID, "error", err)
	}
	e.logger.Error("manual intervention required",
		"session_id", sessionID, "agent", name, "reason", reason)
	e.hooks.manualIntervention(sessionID, name, reference)
}
