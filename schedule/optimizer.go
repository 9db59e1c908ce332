package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
)

const (
	// candidateDays is the planning horizon, starting tomorrow.
	candidateDays = 2 * 7
	// minAvailable is the attendance floor below which a candidate is
	// excluded outright.
	minAvailable = 2
	// maxOptions caps the ranked output.
	maxOptions = 5

	weightPreference = 0.30
	weightConflict   = 0.20
	weightAttendance = 0.30
	weightTypeFit    = 0.20

	// NoScheduleSelected is reported when no candidate clears the
	// attendance floor. It is an explicit outcome, not an error.
	NoScheduleSelected = "no schedule selected"
)

// Availability is one participant's declared time slots.
type Availability struct {
	UserID string
	Slots  []core.TimeSlot
}

// Analysis is the per-candidate overlap breakdown against every
// participant's declared slots.
type Analysis struct {
	Slot            core.TimeSlot
	Available       []string
	Unavailable     []string
	BestPreferences map[string]int
	ConflictDetails []string
}

// Option is one scored schedule candidate.
type Option struct {
	Slot            core.TimeSlot  `json:"slot"`
	Available       []string       `json:"available"`
	Unavailable     []string       `json:"unavailable"`
	PreferenceScore float64        `json:"preference_score"`
	ConflictScore   float64        `json:"conflict_score"`
	AttendanceRate  float64        `json:"attendance_rate"`
	TypeFitness     float64        `json:"type_fitness"`
	TotalScore      float64        `json:"total_score"`
	ConflictDetails []string       `json:"conflict_details,omitempty"`
	Reasoning       string         `json:"reasoning"`
}

// Result is the optimizer output: the ranked options, the automatic pick
// (index 0) and an explicit message when nothing qualified.
type Result struct {
	Options  []Option `json:"options"`
	Selected *Option  `json:"selected,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Optimizer generates and ranks schedule candidates.
type Optimizer struct {
	now    func() time.Time
	logger logging.Logger
}

// OptimizerOption configures an Optimizer.
type OptimizerOption func(*Optimizer)

// WithNow overrides the clock, pinning candidate generation for tests.
func WithNow(now func() time.Time) OptimizerOption {
	return func(o *Optimizer) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the optimizer logger.
func WithLogger(l logging.Logger) OptimizerOption {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOptimizer creates an Optimizer with the wall clock.
func NewOptimizer(opts ...OptimizerOption) *Optimizer {
	o := &Optimizer{now: time.Now, logger: logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Candidates enumerates potential slots: every preferred hour of the event
// type, for each weekday in the next two weeks starting tomorrow, using the
// type's default duration.
func (o *Optimizer) Candidates(typ core.EventType) []core.TimeSlot {
	profile := ProfileFor(typ)
	day := o.now().UTC().Truncate(24 * time.Hour)

	var slots []core.TimeSlot
	for offset := 1; offset <= candidateDays; offset++ {
		date := day.AddDate(0, 0, offset)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, hour := range profile.PreferredHours {
			start := date.Add(time.Duration(hour) * time.Hour)
			slots = append(slots, core.TimeSlot{
				Start:      start,
				End:        start.Add(time.Duration(profile.DurationMinutes) * time.Minute),
				Preference: 2,
			})
		}
	}
	return slots
}

// Analyze tests one candidate against every participant's declared slots.
// Any overlap counts the participant as available and records their best
// preference level among overlapping slots; a partial overlap additionally
// records a conflict detail but still counts as available.
func (o *Optimizer) Analyze(candidate core.TimeSlot, participants []Availability) Analysis {
	a := Analysis{
		Slot:            candidate,
		BestPreferences: make(map[string]int),
	}
	for _, p := range participants {
		available := false
		best := 0
		for _, slot := range p.Slots {
			if !candidate.Overlaps(slot) {
				continue
			}
			available = true
			if slot.Preference > best {
				best = slot.Preference
			}
			if !slot.Contains(candidate) {
				a.ConflictDetails = append(a.ConflictDetails, fmt.Sprintf(
					"%s: partial overlap (%s - %s)",
					p.UserID,
					slot.Start.Format(time.RFC3339),
					slot.End.Format(time.RFC3339),
				))
			}
		}
		if available {
			a.Available = append(a.Available, p.UserID)
			a.BestPreferences[p.UserID] = best
		} else {
			a.Unavailable = append(a.Unavailable, p.UserID)
		}
	}
	return a
}

// Optimize runs the full pipeline: enumerate, analyze, score candidates with
// at least two available participants, rank descending and keep the top
// five. Index 0 of the ranked list is the automatic pick. When no candidate
// qualifies the Result carries the NoScheduleSelected message instead of an
// error.
func (o *Optimizer) Optimize(typ core.EventType, participants []Availability) Result {
	profile := ProfileFor(typ)
	var options []Option
	for _, candidate := range o.Candidates(typ) {
		analysis := o.Analyze(candidate, participants)
		if len(analysis.Available) < minAvailable {
			continue
		}
		options = append(options, o.score(typ, profile, analysis))
	}

	// stable sort keeps enumeration order for equal scores, so output is
	// deterministic given identical input
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].TotalScore > options[j].TotalScore
	})
	if len(options) > maxOptions {
		options = options[:maxOptions]
	}

	if len(options) == 0 {
		o.logger.Warn("no schedule candidate qualified", "event_type", string(typ))
		return Result{Message: NoScheduleSelected}
	}
	o.logger.Info("schedule optimized", "event_type", string(typ), "options", len(options))
	return Result{Options: options, Selected: &options[0]}
}

func (o *Optimizer) score(typ core.EventType, profile TypeProfile, a Analysis) Option {
	preference := preferenceScore(a)
	conflict := conflictScore(a)
	attendance := attendanceRate(a)
	typeFit := typeFitness(profile, a.Slot)

	total := preference*weightPreference +
		(1-conflict)*weightConflict +
		attendance*weightAttendance +
		typeFit*weightTypeFit

	return Option{
		Slot:            a.Slot,
		Available:       a.Available,
		Unavailable:     a.Unavailable,
		PreferenceScore: preference,
		ConflictScore:   conflict,
		AttendanceRate:  attendance,
		TypeFitness:     typeFit,
		TotalScore:      total,
		ConflictDetails: a.ConflictDetails,
		Reasoning:       reasoning(typ, preference, conflict, attendance, typeFit),
	}
}

// preferenceScore is the mean of each available participant's best
// preference level, normalized by the maximum level of 3.
func preferenceScore(a Analysis) float64 {
	if len(a.BestPreferences) == 0 {
		return 0
	}
	sum := 0.0
	for _, pref := range a.BestPreferences {
		sum += float64(pref) / 3.0
	}
	return sum / float64(len(a.BestPreferences))
}

// conflictScore is the conflict-detail count over the total participant
// count, capped at 1. Zero is best.
func conflictScore(a Analysis) float64 {
	if len(a.ConflictDetails) == 0 {
		return 0
	}
	total := len(a.Available) + len(a.Unavailable)
	if total == 0 {
		return 1
	}
	score := float64(len(a.ConflictDetails)) / float64(total)
	if score > 1 {
		return 1
	}
	return score
}

func attendanceRate(a Analysis) float64 {
	total := len(a.Available) + len(a.Unavailable)
	if total == 0 {
		return 0
	}
	return float64(len(a.Available)) / float64(total)
}

// typeFitness is 1.0 when the slot starts at a preferred hour, otherwise it
// decays with the distance to the nearest preferred hour, normalized over a
// 12 hour span.
func typeFitness(profile TypeProfile, slot core.TimeSlot) float64 {
	hour := slot.Start.Hour()
	minDistance := -1
	for _, pref := range profile.PreferredHours {
		d := hour - pref
		if d < 0 {
			d = -d
		}
		if d == 0 {
			return 1.0
		}
		if minDistance < 0 || d < minDistance {
			minDistance = d
		}
	}
	fit := 1.0 - float64(minDistance)/12.0
	if fit < 0 {
		return 0
	}
	return fit
}

var typeLabels = map[core.EventType]string{
	core.EventDining:  "dining",
	core.EventStudy:   "study session",
	core.EventMeeting: "meeting",
}

// reasoning builds the human-readable selection rationale from score
// threshold buckets.
func reasoning(typ core.EventType, preference, conflict, attendance, typeFit float64) string {
	var reasons []string

	switch {
	case attendance >= 0.8:
		reasons = append(reasons, fmt.Sprintf("high attendance (%.0f%%)", attendance*100))
	case attendance >= 0.6:
		reasons = append(reasons, fmt.Sprintf("adequate attendance (%.0f%%)", attendance*100))
	default:
		reasons = append(reasons, fmt.Sprintf("low attendance (%.0f%%)", attendance*100))
	}

	switch {
	case preference >= 0.7:
		reasons = append(reasons, "strongly preferred by participants")
	case preference >= 0.4:
		reasons = append(reasons, "moderately preferred by participants")
	default:
		reasons = append(reasons, "weakly preferred by participants")
	}

	switch {
	case conflict <= 0.2:
		reasons = append(reasons, "few conflicts")
	case conflict <= 0.5:
		reasons = append(reasons, "minor conflicts")
	default:
		reasons = append(reasons, "many conflicts")
	}

	if typeFit >= 0.8 {
		label := typeLabels[typ]
		if label == "" {
			label = "event"
		}
		reasons = append(reasons, "well-suited time for a "+label)
	}

	return strings.Join(reasons, ", ")
}
