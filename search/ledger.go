package search

import (
	"sync"
	"time"
)

const (
	// failureWindow is how far back the ledger looks when judging a source.
	failureWindow = 5 * time.Minute
	// failureThreshold is how many failures inside the window disqualify a
	// source from the next round.
	failureThreshold = 3
)

// failureRecord is one timestamped source failure.
type failureRecord struct {
	Source  string
	Kind    string
	Message string
	At      time.Time
}

// FailureLedger tracks per-source failures so the searcher can skip sources
// that are currently unreliable. Records outside the trailing window are
// pruned lazily on read.
type FailureLedger struct {
	mu      sync.Mutex
	records []failureRecord
	now     func() time.Time
}

// NewFailureLedger creates an empty ledger using the wall clock.
func NewFailureLedger() *FailureLedger {
	return &FailureLedger{now: time.Now}
}

// newFailureLedgerAt creates a ledger with an injected clock for tests.
func newFailureLedgerAt(now func() time.Time) *FailureLedger {
	return &FailureLedger{now: now}
}

// Record logs one failure for a source.
func (l *FailureLedger) Record(source, kind, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, failureRecord{
		Source:  source,
		Kind:    kind,
		Message: message,
		At:      l.now(),
	})
}

// RecentFailures counts failures for a source inside the trailing window.
func (l *FailureLedger) RecentFailures(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	n := 0
	for _, r := range l.records {
		if r.Source == source {
			n++
		}
	}
	return n
}

// Healthy reports whether a source is below the failure threshold.
func (l *FailureLedger) Healthy(source string) bool {
	return l.RecentFailures(source) < failureThreshold
}

// prune drops records older than the window. Callers must hold the lock.
func (l *FailureLedger) prune() {
	cutoff := l.now().Add(-failureWindow)
	kept := l.records[:0]
	for _, r := range l.records {
		if r.At.After(cutoff) {
			kept = append(kept, r)
		}
	}
	l.records = kept
}
