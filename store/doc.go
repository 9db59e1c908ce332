// Package store provides in-memory implementations of the persistence
// contracts: a SessionStore with optimistic-concurrency Save and a keyed
// DocumentStore. Both are safe for concurrent use and are the default
// backends for tests and single-process deployments; the gormstore
// subpackage provides a database-backed DocumentStore.
package store
