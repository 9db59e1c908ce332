package core

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound is returned when a session id has no stored record.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionConflict is returned by Save when the session's version token
	// does not match the stored record, meaning another writer got there
	// first. Callers reload and retry.
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionStore persists coordination sessions. Save enforces optimistic
// concurrency against the session's Version token.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}

// DocumentStore is a generic keyed-document persistence contract used for
// events, participants, venues and other domain records.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, out any) error
	Set(ctx context.Context, collection, id string, doc any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filter map[string]any, out any) error
	Transaction(ctx context.Context, fn func(tx DocumentStore) error) error
}

// ErrDocumentNotFound is returned by DocumentStore.Get for missing documents.
var ErrDocumentNotFound = errors.New("document not found")
