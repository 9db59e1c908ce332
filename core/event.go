package core

import (
	"fmt"
	"time"
)

// EventType categorizes the gathering being planned. The scheduling optimizer
// keys its time-of-day profiles off this type.
type EventType string

const (
	EventDining  EventType = "dining"
	EventStudy   EventType = "study"
	EventMeeting EventType = "meeting"
)

// Event is the gathering under coordination: the entity the whole workflow
// exists to schedule, place and announce.
type Event struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Type            EventType  `json:"type"`
	OrganizerID     string     `json:"organizer_id"`
	Description     string     `json:"description,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	VenueID         string     `json:"venue_id,omitempty"`
	// VenueRequired gates the VenueCoordination phase; venue-less events
	// skip straight from scheduling to calendar integration.
	VenueRequired bool       `json:"venue_required"`
	CalendarRef   string     `json:"calendar_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewEvent creates an event of the given type with a fresh id. Venue
// coordination defaults to required.
func NewEvent(title string, typ EventType, organizerID string) *Event {
	now := time.Now().UTC()
	return &Event{
		ID:            NewID(),
		Title:         title,
		Type:          typ,
		OrganizerID:   organizerID,
		VenueRequired: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ParticipationStatus tracks one participant's reply state.
type ParticipationStatus string

const (
	ParticipationPending   ParticipationStatus = "pending"
	ParticipationConfirmed ParticipationStatus = "confirmed"
	ParticipationDeclined  ParticipationStatus = "declined"
)

// TimeSlot is a participant-declared window of availability with a
// preference level from 1 (acceptable) to 3 (most preferred).
type TimeSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Preference int       `json:"preference"`
}

// Validate checks the slot invariants: End strictly after Start and a
// preference level in 1..3.
func (t TimeSlot) Validate() error {
	if !t.End.After(t.Start) {
		return fmt.Errorf("time slot: end %s is not after start %s", t.End, t.Start)
	}
	if t.Preference < 1 || t.Preference > 3 {
		return fmt.Errorf("time slot: preference %d outside 1..3", t.Preference)
	}
	return nil
}

// Overlaps reports whether the two slots share any span of time.
func (t TimeSlot) Overlaps(other TimeSlot) bool {
	return t.Start.Before(other.End) && other.Start.Before(t.End)
}

// Contains reports whether other lies fully within t.
func (t TimeSlot) Contains(other TimeSlot) bool {
	return !t.Start.After(other.Start) && !other.End.After(t.End)
}

// Duration returns the slot length.
func (t TimeSlot) Duration() time.Duration { return t.End.Sub(t.Start) }

// Participant is one invitee of an event together with their declared
// availability.
type Participant struct {
	ID            string              `json:"id"`
	EventID       string              `json:"event_id"`
	UserID        string              `json:"user_id"`
	DisplayName   string              `json:"display_name,omitempty"`
	Status        ParticipationStatus `json:"status"`
	Slots         []TimeSlot          `json:"slots,omitempty"`
	RemindersSent int                 `json:"reminders_sent"`
	RespondedAt   *time.Time          `json:"responded_at,omitempty"`
}

// NewParticipant creates a pending participant for the given event and user.
func NewParticipant(eventID, userID string) *Participant {
	return &Participant{
		ID:      NewID(),
		EventID: eventID,
		UserID:  userID,
		Status:  ParticipationPending,
	}
}

// Confirmed reports whether the participant has confirmed attendance.
func (p *Participant) Confirmed() bool { return p.Status == ParticipationConfirmed }
