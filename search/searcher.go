package search

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/logging"
)

// fallbackPenalty is applied to every manual-fallback candidate's score.
const fallbackPenalty = 0.7

// ManualConfirmationNote flags fallback candidates that a human must vet.
const ManualConfirmationNote = "needs manual confirmation"

// Result is one scored search hit with its provenance.
type Result struct {
	Venue       Venue    `json:"venue"`
	Source      string   `json:"source"`
	Suitability float64  `json:"suitability"`
	Notes       []string `json:"notes,omitempty"`
}

// NeedsManualConfirmation reports whether the result came from the fallback
// tier and requires a human to confirm it.
func (r Result) NeedsManualConfirmation() bool {
	for _, n := range r.Notes {
		if n == ManualConfirmationNote {
			return true
		}
	}
	return false
}

// Searcher fans one query out across every eligible source, merges the hits
// under the suitability score and falls back to the fixed manual candidates
// when every tier comes back empty. Source errors degrade the result set;
// they never fail the search.
type Searcher struct {
	sources    []Source
	ledger     *FailureLedger
	exclusions map[core.EventType]map[string]bool
	fallback   func(Query) []Venue
	logger     logging.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithSources registers the providers to query, in priority order. Order
// also decides first-seen tie-breaks in the merged ranking.
func WithSources(sources ...Source) SearcherOption {
	return func(s *Searcher) {
		s.sources = append(s.sources, sources...)
	}
}

// WithExclusions statically disables sources for given event types.
func WithExclusions(exclusions map[core.EventType][]string) SearcherOption {
	return func(s *Searcher) {
		for typ, names := range exclusions {
			m := s.exclusions[typ]
			if m == nil {
				m = make(map[string]bool)
				s.exclusions[typ] = m
			}
			for _, n := range names {
				m[n] = true
			}
		}
	}
}

// WithFallback overrides the manual fallback candidate generator.
func WithFallback(fn func(Query) []Venue) SearcherOption {
	return func(s *Searcher) {
		if fn != nil {
			s.fallback = fn
		}
	}
}

// WithLedger substitutes the failure ledger; by default each Searcher owns
// a fresh one.
func WithLedger(l *FailureLedger) SearcherOption {
	return func(s *Searcher) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithSearchLogger sets the searcher logger.
func WithSearchLogger(l logging.Logger) SearcherOption {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSearcher creates a Searcher with the built-in fallback candidates.
func NewSearcher(opts ...SearcherOption) *Searcher {
	s := &Searcher{
		ledger:     NewFailureLedger(),
		exclusions: make(map[core.EventType]map[string]bool),
		fallback:   defaultFallback,
		logger:     logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger exposes the failure ledger for inspection.
func (s *Searcher) Ledger() *FailureLedger { return s.ledger }

// eligible decides whether a source participates in this round.
func (s *Searcher) eligible(src Source, q Query) bool {
	if s.exclusions[q.EventType][src.Name()] {
		s.logger.Debug("source excluded for event type", "source", src.Name(), "event_type", string(q.EventType))
		return false
	}
	if !s.ledger.Healthy(src.Name()) {
		s.logger.Warn("source skipped, too many recent failures", "source", src.Name())
		return false
	}
	return true
}

// Search runs one full round: query all eligible sources concurrently,
// record failures, merge hits by suitability, and fall back to the manual
// candidates when nothing came back. The returned slice is sorted descending
// by suitability with first-seen order breaking ties; index 0 is the
// automatic pick.
func (s *Searcher) Search(ctx context.Context, q Query) []Result {
	type sourceHits struct {
		order  int
		source string
		venues []Venue
	}

	var wg sync.WaitGroup
	hits := make([]sourceHits, 0, len(s.sources))
	var mu sync.Mutex

	for i, src := range s.sources {
		if !s.eligible(src, q) {
			continue
		}
		wg.Add(1)
		go func(order int, src Source) {
			defer wg.Done()
			start := time.Now()
			venues, err := src.Search(ctx, q)
			if err != nil {
				s.ledger.Record(src.Name(), string(core.KindOf(err)), err.Error())
				s.logger.Error("source query failed", "source", src.Name(), "kind", string(core.KindOf(err)), "error", err, "duration", time.Since(start))
				return
			}
			s.logger.Info("source query completed", "source", src.Name(), "results", len(venues), "duration", time.Since(start))
			mu.Lock()
			hits = append(hits, sourceHits{order: order, source: src.Name(), venues: venues})
			mu.Unlock()
		}(i, src)
	}
	wg.Wait()

	// reassemble in source priority order so ties resolve deterministically
	sort.Slice(hits, func(i, j int) bool { return hits[i].order < hits[j].order })

	var results []Result
	for _, h := range hits {
		for _, v := range h.venues {
			results = append(results, Result{
				Venue:       v,
				Source:      h.source,
				Suitability: v.Suitability(q.ParticipantCount, q.BudgetPerPerson, q.RequiredFeatures),
			})
		}
	}

	if len(results) == 0 {
		s.logger.Warn("all sources failed or empty, using manual fallback", "event_type", string(q.EventType))
		for _, v := range s.fallback(q) {
			v.BookingStatus = BookingManualRequired
			results = append(results, Result{
				Venue:       v,
				Source:      "manual_fallback",
				Suitability: v.Suitability(q.ParticipantCount, q.BudgetPerPerson, q.RequiredFeatures) * fallbackPenalty,
				Notes:       []string{ManualConfirmationNote},
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Suitability > results[j].Suitability
	})
	return results
}

// defaultFallback returns the pre-vetted candidates used when every source
// fails or is skipped.
func defaultFallback(q Query) []Venue {
	room := NewVenue("Conference Room A (fallback)", VenueMeetingRoom, 20)
	room.EventID = q.EventID
	room.Address = "downtown annex"
	room.CostPerPerson = 2000
	room.Notes = "pre-vetted fallback candidate"

	cafe := NewVenue("Cafe B (fallback)", VenueRestaurant, 15)
	cafe.EventID = q.EventID
	cafe.Address = "station front"
	cafe.CostPerPerson = 1500
	cafe.Notes = "pre-vetted fallback candidate"

	return []Venue{room, cafe}
}
