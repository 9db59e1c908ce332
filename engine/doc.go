// Package engine implements the coordination engine: it owns sessions, walks
// them through the fixed phase sequence, starts workers in dependency order,
// reacts to completion and failure events from the bus, and applies the
// recovery policy when a worker fails.
//
// The engine is the single writer for session state. Every mutation goes
// through a load-modify-save cycle against the session store, which enforces
// an optimistic-concurrency version check; conflicting writers reload and
// retry instead of overwriting each other.
package engine
