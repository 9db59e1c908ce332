package search

import (
	"github.com/planmesh/planmesh/core"
)

// VenueType categorizes a venue.
type VenueType string

const (
	VenueRestaurant  VenueType = "restaurant"
	VenueCafe        VenueType = "cafe"
	VenueMeetingRoom VenueType = "meeting_room"
	VenueExternal    VenueType = "external"
)

// BookingStatus tracks how far a venue reservation has progressed.
type BookingStatus string

const (
	BookingPending        BookingStatus = "pending"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingFailed         BookingStatus = "failed"
	BookingManualRequired BookingStatus = "manual_required"
)

// Venue is one candidate location for an event.
type Venue struct {
	ID            string        `json:"id"`
	EventID       string        `json:"event_id,omitempty"`
	Name          string        `json:"name"`
	Address       string        `json:"address,omitempty"`
	Type          VenueType     `json:"type"`
	Capacity      int           `json:"capacity"`
	MinCapacity   int           `json:"min_capacity,omitempty"`
	CostPerPerson int           `json:"cost_per_person,omitempty"`
	Rating        float64       `json:"rating,omitempty"`
	Features      []string      `json:"features,omitempty"`
	BookingStatus BookingStatus `json:"booking_status"`
	Notes         string        `json:"notes,omitempty"`
}

// NewVenue creates a venue with a fresh id and pending booking status.
func NewVenue(name string, typ VenueType, capacity int) Venue {
	return Venue{
		ID:            core.NewID(),
		Name:          name,
		Type:          typ,
		Capacity:      capacity,
		BookingStatus: BookingPending,
	}
}

// HasFeature reports whether the venue declares the named feature.
func (v Venue) HasFeature(name string) bool {
	for _, f := range v.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Suitability scores how well the venue fits the request, on 0..1. Weights:
// capacity fit 40%, budget fit 30%, required features 20%, rating 10%.
// Capacity fit peaks at 70-80% utilization; a venue too small for the group
// (or below its own minimum) scores zero on capacity.
func (v Venue) Suitability(participants, budgetPerPerson int, requiredFeatures []string) float64 {
	var capacityScore float64
	switch {
	case v.MinCapacity > 0 && participants < v.MinCapacity:
		capacityScore = 0
	case v.Capacity <= 0 || participants > v.Capacity:
		capacityScore = 0
	default:
		utilization := float64(participants) / float64(v.Capacity)
		switch {
		case utilization >= 0.7 && utilization <= 0.8:
			capacityScore = 1.0
		case utilization < 0.7:
			capacityScore = utilization / 0.7
		default:
			capacityScore = 1.0 - (utilization-0.8)/0.2
			if capacityScore < 0 {
				capacityScore = 0
			}
		}
	}

	budgetScore := 1.0
	if budgetPerPerson > 0 && v.CostPerPerson > 0 && v.CostPerPerson > budgetPerPerson {
		overRatio := float64(v.CostPerPerson) / float64(budgetPerPerson)
		budgetScore = 1.0 - (overRatio - 1.0)
		if budgetScore < 0 {
			budgetScore = 0
		}
	}

	featureScore := 1.0
	if len(requiredFeatures) > 0 {
		matched := 0
		for _, f := range requiredFeatures {
			if v.HasFeature(f) {
				matched++
			}
		}
		featureScore = float64(matched) / float64(len(requiredFeatures))
	}

	ratingScore := 0.5
	if v.Rating > 0 {
		ratingScore = (v.Rating - 1.0) / 4.0
	}

	score := capacityScore*0.4 + budgetScore*0.3 + featureScore*0.2 + ratingScore*0.1
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}
