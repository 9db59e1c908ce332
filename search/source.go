package search

import (
	"context"

	"github.com/planmesh/planmesh/core"
)

// Query describes one venue search request. Sources receive the whole query
// and return whatever candidates they can; filtering and ranking happen in
// the searcher.
type Query struct {
	EventID          string         `json:"event_id"`
	EventType        core.EventType `json:"event_type"`
	ParticipantCount int            `json:"participant_count"`
	BudgetPerPerson  int            `json:"budget_per_person,omitempty"`
	RequiredFeatures []string       `json:"required_features,omitempty"`
	RadiusMeters     int            `json:"radius_meters,omitempty"`
}

// Source is one external venue provider. Implementations report failures
// through the uniform failure envelope (core.Failure) so the searcher can
// classify them without inspecting provider-specific codes.
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Venue, error)
}

// typeSettings carries the per-event-type search defaults.
type typeSettings struct {
	RequiredFeatures []string
	RadiusMeters     int
}

var searchSettings = map[core.EventType]typeSettings{
	core.EventDining:  {RequiredFeatures: []string{"food_service"}, RadiusMeters: 2000},
	core.EventStudy:   {RequiredFeatures: []string{"wifi", "quiet"}, RadiusMeters: 5000},
	core.EventMeeting: {RequiredFeatures: []string{"projector", "wifi", "meeting_equipment"}, RadiusMeters: 10000},
}

// SettingsFor returns the default required features and search radius for
// an event type. Unknown types fall back to the meeting settings.
func SettingsFor(typ core.EventType) (features []string, radiusMeters int) {
	s, ok := searchSettings[typ]
	if !ok {
		s = searchSettings[core.EventMeeting]
	}
	out := make([]string, len(s.RequiredFeatures))
	copy(out, s.RequiredFeatures)
	return out, s.RadiusMeters
}
