package core

import (
	"testing"
	"time"
)

func ts(hour, min int) time.Time {
	return time.Date(2026, 9, 8, hour, min, 0, 0, time.UTC)
}

func TestTimeSlotValidate(t *testing.T) {
	good := TimeSlot{Start: ts(18, 0), End: ts(20, 0), Preference: 1}
	if err := good.Validate(); err != nil {
		t.Errorf("valid slot rejected: %v", err)
	}
	bad := TimeSlot{Start: ts(20, 0), End: ts(18, 0), Preference: 1}
	if err := bad.Validate(); err == nil {
		t.Error("inverted slot accepted")
	}
	badPref := TimeSlot{Start: ts(18, 0), End: ts(20, 0), Preference: 4}
	if err := badPref.Validate(); err == nil {
		t.Error("out-of-range preference accepted")
	}
}

func TestTimeSlotOverlaps(t *testing.T) {
	a := TimeSlot{Start: ts(18, 0), End: ts(20, 0)}
	b := TimeSlot{Start: ts(19, 0), End: ts(21, 0)}
	c := TimeSlot{Start: ts(20, 0), End: ts(21, 0)}
	if !a.Overlaps(b) || !b.Overlaps(a) {
		t.Error("overlapping slots not detected")
	}
	// shared boundary is not an overlap
	if a.Overlaps(c) {
		t.Error("adjacent slots reported overlapping")
	}
}

func TestTimeSlotContains(t *testing.T) {
	slot := TimeSlot{Start: ts(18, 0), End: ts(20, 0)}
	inner := TimeSlot{Start: ts(18, 0), End: ts(19, 30)}
	outer := TimeSlot{Start: ts(17, 30), End: ts(19, 0)}
	if !slot.Contains(inner) {
		t.Error("contained slot not detected")
	}
	if slot.Contains(outer) {
		t.Error("partially outside slot reported contained")
	}
}

func TestNewEventDefaults(t *testing.T) {
	e := NewEvent("Team dinner", EventDining, "user-1")
	if e.ID == "" {
		t.Error("missing id")
	}
	if !e.VenueRequired {
		t.Error("venue should be required by default")
	}
}

func TestParticipantConfirmed(t *testing.T) {
	p := NewParticipant("evt-1", "user-2")
	if p.Status != ParticipationPending {
		t.Errorf("new participant status = %s", p.Status)
	}
	if p.Confirmed() {
		t.Error("pending participant reported confirmed")
	}
	p.Status = ParticipationConfirmed
	if !p.Confirmed() {
		t.Error("confirmed participant not reported")
	}
}
