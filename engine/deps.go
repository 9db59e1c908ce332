package engine

import "github.com/planmesh/planmesh/core"

// Canonical worker names. The dependency graph and the phase-to-worker
// mapping are keyed by these.
const (
	AgentParticipant = "participant"
	AgentScheduling  = "scheduling"
	AgentVenue       = "venue"
	AgentCalendar    = "calendar"
)

// dependenciesFor returns the static dependency set for a worker. The
// calendar worker drops its venue dependency for venue-less events, matching
// the phase table's venue skip.
func dependenciesFor(name string, venueRequired bool) []string {
	switch name {
	case AgentParticipant:
		return nil
	case AgentScheduling:
		return []string{AgentParticipant}
	case AgentVenue:
		return []string{AgentScheduling}
	case AgentCalendar:
		if venueRequired {
			return []string{AgentScheduling, AgentVenue}
		}
		return []string{AgentScheduling}
	default:
		return nil
	}
}

// agentForPhase maps each phase to the worker that drives it. Phases without
// an entry are engine-driven (confirmation, announcement).
func agentForPhase(p core.Phase) (string, bool) {
	switch p {
	case core.PhaseParticipantCollection:
		return AgentParticipant, true
	case core.PhaseScheduleCoordination:
		return AgentScheduling, true
	case core.PhaseVenueCoordination:
		return AgentVenue, true
	case core.PhaseCalendarIntegration:
		return AgentCalendar, true
	default:
		return "", false
	}
}

// exitPhase returns the phase entered when the given worker completes.
// Scheduling exits to venue coordination or, for venue-less events, straight
// to calendar integration.
func exitPhase(agent string, venueRequired bool) (core.Phase, bool) {
	switch agent {
	case AgentParticipant:
		return core.PhaseScheduleCoordination, true
	case AgentScheduling:
		if venueRequired {
			return core.PhaseVenueCoordination, true
		}
		return core.PhaseCalendarIntegration, true
	case AgentVenue:
		return core.PhaseCalendarIntegration, true
	case AgentCalendar:
		return core.PhaseFinalConfirmation, true
	default:
		return "", false
	}
}
