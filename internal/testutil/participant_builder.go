package testutil

import (
	"time"

	"github.com/planmesh/planmesh/core"
)

// ParticipantBuilder constructs participants with declared availability.
// Example:
//
//	p := NewParticipantBuilder("evt-1", "alice").Confirmed().
//		Slot(start, end, 3).Build()
type ParticipantBuilder struct {
	eventID string
	userID  string
	status  core.ParticipationStatus
	slots   []core.TimeSlot
}

// NewParticipantBuilder creates a builder for a pending participant.
func NewParticipantBuilder(eventID, userID string) *ParticipantBuilder {
	return &ParticipantBuilder{eventID: eventID, userID: userID, status: core.ParticipationPending}
}

// Confirmed marks the participant as confirmed (chainable).
func (b *ParticipantBuilder) Confirmed() *ParticipantBuilder {
	b.status = core.ParticipationConfirmed
	return b
}

// Declined marks the participant as declined (chainable).
func (b *ParticipantBuilder) Declined() *ParticipantBuilder {
	b.status = core.ParticipationDeclined
	return b
}

// Slot appends an availability window (chainable).
func (b *ParticipantBuilder) Slot(start, end time.Time, preference int) *ParticipantBuilder {
	b.slots = append(b.slots, core.TimeSlot{Start: start, End: end, Preference: preference})
	return b
}

// Build assembles the participant.
func (b *ParticipantBuilder) Build() *core.Participant {
	p := core.NewParticipant(b.eventID, b.userID)
	p.Status = b.status
	p.Slots = b.slots
	return p
}
