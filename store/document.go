package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/planmesh/planmesh/core"
)

// InMemoryDocumentStore keeps documents as JSON blobs keyed by collection
// and id. Serializing through JSON keeps stored documents decoupled from
// caller-held values the same way a real database would.
type InMemoryDocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

var _ core.DocumentStore = (*InMemoryDocumentStore)(nil)

// NewDocumentStore creates an empty in-memory document store.
func NewDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{collections: make(map[string]map[string][]byte)}
}

// Set stores doc under collection/id, replacing any existing document.
func (s *InMemoryDocumentStore) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.collections[collection] = coll
	}
	coll[id] = raw
	return nil
}

// Get unmarshals the document at collection/id into out.
func (s *InMemoryDocumentStore) Get(ctx context.Context, collection, id string, out any) error {
	s.mu.RLock()
	raw, ok := s.collections[collection][id]
	s.mu.RUnlock()
	if !ok {
		return core.ErrDocumentNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the document at collection/id. Missing documents return
// ErrDocumentNotFound.
func (s *InMemoryDocumentStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		return core.ErrDocumentNotFound
	}
	if _, ok := coll[id]; !ok {
		return core.ErrDocumentNotFound
	}
	delete(coll, id)
	return nil
}

// Query unmarshals every document in collection whose top-level fields
// equal the filter values into out, which must be a pointer to a slice.
// A nil or empty filter matches everything.
func (s *InMemoryDocumentStore) Query(ctx context.Context, collection string, filter map[string]any, out any) error {
	s.mu.RLock()
	coll := s.collections[collection]
	matched := make([]json.RawMessage, 0, len(coll))
	for _, raw := range coll {
		ok, err := matches(raw, filter)
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("query %s: %w", collection, err)
		}
		if ok {
			matched = append(matched, json.RawMessage(raw))
		}
	}
	s.mu.RUnlock()

	encoded, err := json.Marshal(matched)
	if err != nil {
		return fmt.Errorf("query %s: %w", collection, err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return fmt.Errorf("query %s: %w", collection, err)
	}
	return nil
}

func matches(raw []byte, filter map[string]any) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, err
	}
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false, nil
		}
		// normalize through JSON so ints and float64s compare equal
		gw, _ := json.Marshal(want)
		gg, _ := json.Marshal(got)
		if !reflect.DeepEqual(gw, gg) {
			return false, nil
		}
	}
	return true, nil
}

// Transaction runs fn against a staged copy of the store and commits it
// only when fn returns nil. Concurrent transactions serialize on a single
// lock, so fn must not call back into this store.
func (s *InMemoryDocumentStore) Transaction(ctx context.Context, fn func(tx core.DocumentStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := NewDocumentStore()
	for coll, docs := range s.collections {
		copied := make(map[string][]byte, len(docs))
		for id, raw := range docs {
			dup := make([]byte, len(raw))
			copy(dup, raw)
			copied[id] = dup
		}
		staged.collections[coll] = copied
	}

	if err := fn(staged); err != nil {
		return err
	}
	s.collections = staged.collections
	return nil
}
