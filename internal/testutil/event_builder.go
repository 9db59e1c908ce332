package testutil

import (
	"time"

	"github.com/planmesh/planmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Title("Team dinner").Type(core.EventDining).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	title         string
	typ           core.EventType
	organizer     string
	venueRequired *bool
	scheduledAt   *time.Time
	duration      int
}

// NewEventBuilder creates a builder with default type dining and organizer
// "organizer".
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{title: "Event", typ: core.EventDining, organizer: "organizer"}
}

// Title sets the event title (chainable).
func (b *EventBuilder) Title(t string) *EventBuilder { b.title = t; return b }

// Type sets the event type (chainable).
func (b *EventBuilder) Type(t core.EventType) *EventBuilder { b.typ = t; return b }

// Organizer sets the organizing user (chainable).
func (b *EventBuilder) Organizer(id string) *EventBuilder { b.organizer = id; return b }

// NoVenue marks the event as not needing a venue (chainable).
func (b *EventBuilder) NoVenue() *EventBuilder {
	f := false
	b.venueRequired = &f
	return b
}

// ScheduledAt pins the chosen slot start and duration (chainable).
func (b *EventBuilder) ScheduledAt(t time.Time, minutes int) *EventBuilder {
	b.scheduledAt = &t
	b.duration = minutes
	return b
}

// Build assembles the event.
func (b *EventBuilder) Build() *core.Event {
	ev := core.NewEvent(b.title, b.typ, b.organizer)
	if b.venueRequired != nil {
		ev.VenueRequired = *b.venueRequired
	}
	if b.scheduledAt != nil {
		ev.ScheduledAt = b.scheduledAt
		ev.DurationMinutes = b.duration
	}
	return ev
}
