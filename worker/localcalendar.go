package worker

import (
	"context"

	"github.com/planmesh/planmesh/core"
)

const collectionCalendar = "calendar_entries"

// LocalCalendar is a CalendarService that records entries in the document
// store instead of calling an external provider. It is the default for
// local development and tests; production deployments supply a real
// provider adapter.
type LocalCalendar struct {
	docs core.DocumentStore
}

// NewLocalCalendar creates a document-store-backed calendar service.
func NewLocalCalendar(docs core.DocumentStore) *LocalCalendar {
	return &LocalCalendar{docs: docs}
}

// CreateEntry persists the request and returns its generated reference.
func (c *LocalCalendar) CreateEntry(ctx context.Context, req CalendarRequest) (string, error) {
	ref := "local-" + core.NewID()
	if err := c.docs.Set(ctx, collectionCalendar, ref, req); err != nil {
		return "", core.WrapFailure(core.FailureInternal, "calendar.local.create", err)
	}
	return ref, nil
}
