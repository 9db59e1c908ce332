// Package search implements resilient multi-source venue search: sources
// that failed repeatedly in the trailing window are skipped, eligible
// sources are queried concurrently with errors collected rather than
// propagated, and when every tier comes back empty a fixed manual-fallback
// list is returned with a reliability penalty. Results merge under one
// source-agnostic suitability score.
package search
