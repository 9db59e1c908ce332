package planmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/internal/testutil"
	"github.com/planmesh/planmesh/search"
)

type stubSource struct {
	venues []search.Venue
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Search(context.Context, search.Query) ([]search.Venue, error) {
	return s.venues, nil
}

func seedConfirmed(t *testing.T, docs core.DocumentStore, eventID, userID string, slot core.TimeSlot) {
	t.Helper()
	p := testutil.NewParticipantBuilder(eventID, userID).Confirmed().
		Slot(slot.Start, slot.End, slot.Preference).Build()
	require.NoError(t, docs.Set(context.Background(), "participants", p.ID, p))
}

func TestFullAutoPipeline(t *testing.T) {
	ctx := context.Background()

	venue := search.NewVenue("Trattoria", search.VenueRestaurant, 8)
	venue.CostPerPerson = 2200
	venue.Rating = 4.2
	venue.Features = []string{"food_service"}

	m, err := New(ctx,
		func(o *Options) { o.AutomationLevel = core.AutomationFullAuto },
		func(o *Options) { o.VenueSources = []search.Source{&stubSource{venues: []search.Venue{venue}}} },
	)
	require.NoError(t, err)
	defer m.Close()

	event := testutil.NewEventBuilder().Title("Team dinner").Build()
	require.NoError(t, m.Documents().Set(ctx, "events", event.ID, event))

	// availability two weeks out so the optimizer always finds the window
	day := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 2)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	slot := core.TimeSlot{Start: day.Add(18 * time.Hour), End: day.Add(21 * time.Hour), Preference: 3}
	seedConfirmed(t, m.Documents(), event.ID, "u1", slot)
	seedConfirmed(t, m.Documents(), event.ID, "u2", slot)
	seedConfirmed(t, m.Documents(), event.ID, "u3", slot)

	session, err := m.Plan(ctx, event)
	require.NoError(t, err)

	// full automation drives the pipeline through every worker phase
	status, err := m.Status(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseFinalConfirmation, status.CurrentPhase)

	var stored core.Event
	require.NoError(t, m.Documents().Get(ctx, "events", event.ID, &stored))
	require.NotNil(t, stored.ScheduledAt)
	assert.NotEmpty(t, stored.VenueID)
	assert.NotEmpty(t, stored.CalendarRef)

	require.NoError(t, m.Confirm(ctx, session.ID))
	require.NoError(t, m.Announce(ctx, session.ID))

	status, err = m.Status(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseCompleted, status.CurrentPhase)
}

func TestSessionTTLAndPruning(t *testing.T) {
	ctx := context.Background()

	m, err := New(ctx, func(o *Options) { o.SessionTTL = time.Nanosecond })
	require.NoError(t, err)
	defer m.Close()

	event := testutil.NewEventBuilder().Title("Study group").Type(core.EventStudy).NoVenue().Build()
	require.NoError(t, m.Documents().Set(ctx, "events", event.ID, event))

	day := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 2)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	slot := core.TimeSlot{Start: day.Add(10 * time.Hour), End: day.Add(17 * time.Hour), Preference: 3}
	seedConfirmed(t, m.Documents(), event.ID, "u1", slot)
	seedConfirmed(t, m.Documents(), event.ID, "u2", slot)

	session, err := m.Plan(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, session.ExpiresAt)

	// the nanosecond TTL has long elapsed, so the sweep removes the session
	assert.Equal(t, 1, m.PruneSessions(ctx))
	_, err = m.Status(ctx, session.ID)
	require.Error(t, err)
}

func TestSemiAutoStopsAtConfirmationPoint(t *testing.T) {
	ctx := context.Background()

	m, err := New(ctx)
	require.NoError(t, err)
	defer m.Close()

	event := testutil.NewEventBuilder().Title("Study group").Type(core.EventStudy).NoVenue().Build()
	require.NoError(t, m.Documents().Set(ctx, "events", event.ID, event))

	day := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 2)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	slot := core.TimeSlot{Start: day.Add(10 * time.Hour), End: day.Add(17 * time.Hour), Preference: 3}
	seedConfirmed(t, m.Documents(), event.ID, "u1", slot)
	seedConfirmed(t, m.Documents(), event.ID, "u2", slot)

	session, err := m.Plan(ctx, event)
	require.NoError(t, err)

	// participants complete immediately, then the session waits for the
	// user at schedule coordination
	status, err := m.Status(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseScheduleCoordination, status.CurrentPhase)

	require.NoError(t, m.Proceed(ctx, session.ID))
	status, err = m.Status(ctx, session.ID)
	require.NoError(t, err)

	// venue is skipped for venue-less events and calendar integration is
	// not a confirmation point, so the session runs through to the final
	// confirmation gate
	assert.Equal(t, core.PhaseFinalConfirmation, status.CurrentPhase)

	var stored core.Event
	require.NoError(t, m.Documents().Get(ctx, "events", event.ID, &stored))
	assert.Empty(t, stored.VenueID)
	assert.NotEmpty(t, stored.CalendarRef)
}
