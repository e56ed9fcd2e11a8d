package repository

import (
	"context"

	"transitdocs/internal/model"
)

// DocumentRepository defines data access for document records using SQL
// queries only. No business logic here — strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row
	// (may include values set by the database).
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// ListByUser returns all documents owned by the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]model.Document, error)

	// ListByDepartment returns all documents owned by the department, newest first.
	ListByDepartment(ctx context.Context, department string) ([]model.Document, error)

	// UpdateAnalysis replaces the AI-derived tuple (summary, department,
	// priority, action_required) in a single statement so readers never see
	// a partial overwrite.
	UpdateAnalysis(ctx context.Context, id string, a model.Analysis) error

	// SetRead sets the read flag.
	SetRead(ctx context.Context, id string, isRead bool) error

	// Delete removes a document by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}
