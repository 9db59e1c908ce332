package schedule

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/planmesh/planmesh/core"
)

// fixedNow pins the clock to Monday 2026-09-07 so "tomorrow" is a Tuesday.
func fixedNow() time.Time {
	return time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
}

func slotOn(day time.Time, startHour, startMin, endHour, endMin, pref int) core.TimeSlot {
	return core.TimeSlot{
		Start:      time.Date(day.Year(), day.Month(), day.Day(), startHour, startMin, 0, 0, time.UTC),
		End:        time.Date(day.Year(), day.Month(), day.Day(), endHour, endMin, 0, 0, time.UTC),
		Preference: pref,
	}
}

func TestCandidatesSkipWeekends(t *testing.T) {
	o := NewOptimizer(WithNow(fixedNow))
	for _, slot := range o.Candidates(core.EventMeeting) {
		if wd := slot.Start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("weekend candidate generated: %s", slot.Start)
		}
	}
}

func TestCandidatesUseProfileHoursAndDuration(t *testing.T) {
	o := NewOptimizer(WithNow(fixedNow))
	profile := ProfileFor(core.EventDining)
	hours := map[int]bool{}
	for _, h := range profile.PreferredHours {
		hours[h] = true
	}
	for _, slot := range o.Candidates(core.EventDining) {
		if !hours[slot.Start.Hour()] {
			t.Errorf("candidate at non-preferred hour %d", slot.Start.Hour())
		}
		if got := slot.Duration(); got != 90*time.Minute {
			t.Errorf("candidate duration = %v, want 90m", got)
		}
	}
	// candidates start tomorrow, never today
	tomorrow := fixedNow().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	for _, slot := range o.Candidates(core.EventDining) {
		if slot.Start.Before(tomorrow) {
			t.Errorf("candidate before tomorrow: %s", slot.Start)
		}
	}
}

func TestDiningSelection(t *testing.T) {
	// five participants each hold a preference-1 slot covering Tuesday
	// 18:00-20:00; the optimizer must pick Tuesday 18:00-19:30
	tuesday := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	var participants []Availability
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		participants = append(participants, Availability{
			UserID: id,
			Slots:  []core.TimeSlot{slotOn(tuesday, 18, 0, 20, 0, 1)},
		})
	}

	o := NewOptimizer(WithNow(fixedNow))
	result := o.Optimize(core.EventDining, participants)
	if result.Selected == nil {
		t.Fatalf("no schedule selected: %q", result.Message)
	}

	sel := result.Selected
	wantStart := time.Date(2026, 9, 8, 18, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 9, 8, 19, 30, 0, 0, time.UTC)
	if !sel.Slot.Start.Equal(wantStart) || !sel.Slot.End.Equal(wantEnd) {
		t.Errorf("selected %s - %s, want %s - %s", sel.Slot.Start, sel.Slot.End, wantStart, wantEnd)
	}
	if sel.AttendanceRate != 1.0 {
		t.Errorf("attendance = %v, want 1.0", sel.AttendanceRate)
	}
	if sel.TypeFitness != 1.0 {
		t.Errorf("type fitness = %v, want 1.0", sel.TypeFitness)
	}
	if sel.ConflictScore != 0 {
		t.Errorf("conflict score = %v, want 0", sel.ConflictScore)
	}
}

func TestMinimumAvailableParticipants(t *testing.T) {
	tuesday := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	participants := []Availability{
		{UserID: "u1", Slots: []core.TimeSlot{slotOn(tuesday, 18, 0, 20, 0, 2)}},
		// u2 has no availability at all
		{UserID: "u2"},
	}

	o := NewOptimizer(WithNow(fixedNow))
	result := o.Optimize(core.EventDining, participants)
	if result.Selected != nil {
		t.Errorf("candidate with one available participant selected")
	}
	if result.Message != NoScheduleSelected {
		t.Errorf("message = %q, want %q", result.Message, NoScheduleSelected)
	}
	for _, opt := range result.Options {
		if len(opt.Available) < 2 {
			t.Errorf("option with %d available participants returned", len(opt.Available))
		}
	}
}

func TestPartialOverlapCountsAvailableWithConflict(t *testing.T) {
	tuesday := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	participants := []Availability{
		{UserID: "full1", Slots: []core.TimeSlot{slotOn(tuesday, 18, 0, 20, 0, 2)}},
		{UserID: "full2", Slots: []core.TimeSlot{slotOn(tuesday, 18, 0, 20, 0, 2)}},
		// overlaps 18:00-19:30 candidate only from 19:00
		{UserID: "partial", Slots: []core.TimeSlot{slotOn(tuesday, 19, 0, 21, 0, 2)}},
	}

	o := NewOptimizer(WithNow(fixedNow))
	candidate := slotOn(tuesday, 18, 0, 19, 30, 2)
	analysis := o.Analyze(candidate, participants)

	if len(analysis.Available) != 3 {
		t.Fatalf("available = %v, want all three", analysis.Available)
	}
	if len(analysis.ConflictDetails) != 1 {
		t.Fatalf("conflict details = %v, want one entry", analysis.ConflictDetails)
	}
	if !strings.Contains(analysis.ConflictDetails[0], "partial") {
		t.Errorf("conflict detail = %q", analysis.ConflictDetails[0])
	}

	// the conflict must raise conflictScore above a conflict-free analysis
	clean := o.Analyze(candidate, participants[:2])
	if conflictScore(analysis) <= conflictScore(clean) {
		t.Errorf("conflict score %v not above clean %v", conflictScore(analysis), conflictScore(clean))
	}
}

func TestOptionsSortedDescendingAndCapped(t *testing.T) {
	tuesday := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	wednesday := tuesday.AddDate(0, 0, 1)
	// broad availability so many candidates qualify
	var participants []Availability
	for _, id := range []string{"u1", "u2", "u3"} {
		participants = append(participants, Availability{
			UserID: id,
			Slots: []core.TimeSlot{
				slotOn(tuesday, 9, 0, 21, 0, 3),
				slotOn(wednesday, 9, 0, 21, 0, 2),
			},
		})
	}

	o := NewOptimizer(WithNow(fixedNow))
	result := o.Optimize(core.EventDining, participants)
	if len(result.Options) > 5 {
		t.Errorf("options = %d, want at most 5", len(result.Options))
	}
	sorted := sort.SliceIsSorted(result.Options, func(i, j int) bool {
		return result.Options[i].TotalScore > result.Options[j].TotalScore
	})
	if !sorted {
		t.Error("options not sorted by descending score")
	}
	if result.Selected == nil || result.Selected.TotalScore != result.Options[0].TotalScore {
		t.Error("selected option is not the top-ranked one")
	}
}

func TestReasoningBuckets(t *testing.T) {
	got := reasoning(core.EventDining, 0.9, 0.1, 1.0, 1.0)
	for _, want := range []string{"high attendance", "strongly preferred", "few conflicts", "dining"} {
		if !strings.Contains(got, want) {
			t.Errorf("reasoning %q missing %q", got, want)
		}
	}
	low := reasoning(core.EventMeeting, 0.1, 0.9, 0.3, 0.2)
	for _, want := range []string{"low attendance", "weakly preferred", "many conflicts"} {
		if !strings.Contains(low, want) {
			t.Errorf("reasoning %q missing %q", low, want)
		}
	}
}

func TestTypeFitnessDecay(t *testing.T) {
	profile := ProfileFor(core.EventMeeting)
	at := func(hour int) core.TimeSlot {
		return core.TimeSlot{
			Start: time.Date(2026, 9, 8, hour, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 9, 8, hour+1, 0, 0, 0, time.UTC),
		}
	}
	if got := typeFitness(profile, at(9)); got != 1.0 {
		t.Errorf("preferred hour fitness = %v", got)
	}
	// hour 13 is one away from both 14 and 11 preferred hours
	want := 1.0 - 1.0/12.0
	if got := typeFitness(profile, at(13)); got != want {
		t.Errorf("near-hour fitness = %v, want %v", got, want)
	}
	if got := typeFitness(profile, at(22)); got >= 1.0-1.0/12.0 {
		t.Errorf("distant-hour fitness too high: %v", got)
	}
}
