package schedule

import "github.com/planmesh/planmesh/core"

// TypeProfile holds the per-event-type scheduling preferences: the hours a
// slot ideally starts at and the default slot length.
type TypeProfile struct {
	PreferredHours  []int
	DurationMinutes int
}

var typeProfiles = map[core.EventType]TypeProfile{
	core.EventDining: {
		PreferredHours:  []int{12, 13, 18, 19, 20},
		DurationMinutes: 90,
	},
	core.EventStudy: {
		PreferredHours:  []int{10, 11, 14, 15, 16},
		DurationMinutes: 120,
	},
	core.EventMeeting: {
		PreferredHours:  []int{9, 10, 11, 14, 15, 16},
		DurationMinutes: 60,
	},
}

// ProfileFor returns the scheduling profile for an event type. Unknown types
// fall back to the meeting profile.
func ProfileFor(typ core.EventType) TypeProfile {
	if p, ok := typeProfiles[typ]; ok {
		return p
	}
	return typeProfiles[core.EventMeeting]
}
