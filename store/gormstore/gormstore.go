// Package gormstore implements the DocumentStore contract on a relational
// database via gorm. Documents are stored as JSON blobs in a single table
// keyed by collection and document id, which keeps the schema portable
// across dialects; filter matching happens in Go after loading the
// collection.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/planmesh/planmesh/core"
)

// Document is the gorm row model. One row per stored document.
type Document struct {
	ID         uint   `gorm:"primaryKey"`
	Collection string `gorm:"uniqueIndex:idx_coll_doc;size:64;not null"`
	DocID      string `gorm:"uniqueIndex:idx_coll_doc;size:64;not null"`
	Data       []byte `gorm:"not null"`
}

// Store is a core.DocumentStore backed by a gorm-managed database.
type Store struct {
	db *gorm.DB
}

var _ core.DocumentStore = (*Store)(nil)

// Open connects with the given dialector, migrates the document table and
// returns a ready store. The gorm logger is silenced; query logging belongs
// to the application logger.
func Open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-opened gorm DB without migrating.
func New(db *gorm.DB) *Store { return &Store{db: db} }

// Set stores doc under collection/id, upserting on conflict.
func (s *Store) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("gormstore: set %s/%s: %w", collection, id, err)
	}
	row := Document{Collection: collection, DocID: id, Data: raw}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("gormstore: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get unmarshals the document at collection/id into out.
func (s *Store) Get(ctx context.Context, collection, id string, out any) error {
	var row Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("gormstore: get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal(row.Data, out); err != nil {
		return fmt.Errorf("gormstore: get %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the document at collection/id.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&Document{})
	if res.Error != nil {
		return fmt.Errorf("gormstore: delete %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrDocumentNotFound
	}
	return nil
}

// Query unmarshals every document in collection whose top-level fields equal
// the filter values into out, a pointer to a slice. A nil filter matches the
// whole collection.
func (s *Store) Query(ctx context.Context, collection string, filter map[string]any, out any) error {
	var rows []Document
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("gormstore: query %s: %w", collection, err)
	}

	matched := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		ok, err := matches(row.Data, filter)
		if err != nil {
			return fmt.Errorf("gormstore: query %s: %w", collection, err)
		}
		if ok {
			matched = append(matched, json.RawMessage(row.Data))
		}
	}
	encoded, err := json.Marshal(matched)
	if err != nil {
		return fmt.Errorf("gormstore: query %s: %w", collection, err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return fmt.Errorf("gormstore: query %s: %w", collection, err)
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
		gw, _ := json.Marshal(want)
		gg, _ := json.Marshal(got)
		if !reflect.DeepEqual(gw, gg) {
			return false, nil
		}
	}
	return true, nil
}

// Transaction runs fn inside a database transaction; fn sees a Store bound
// to the transaction handle and any error rolls the whole batch back.
func (s *Store) Transaction(ctx context.Context, fn func(tx core.DocumentStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
