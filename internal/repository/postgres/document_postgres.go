package postgres

import (
	"context"
	"database/sql"

	"transitdocs/internal/model"
	"transitdocs/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, user_id, department, name, path, mime_type, size_bytes, ai_summary, priority, action_required, is_read, created_at`

func scanDocument(row interface{ Scan(dest ...any) error }) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Department,
		&d.Name,
		&d.Path,
		&d.MimeType,
		&d.SizeBytes,
		&d.AISummary,
		&d.Priority,
		&d.ActionRequired,
		&d.IsRead,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, user_id, department, name, path, mime_type, size_bytes, ai_summary, priority, action_required, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.UserID,
		doc.Department,
		doc.Name,
		doc.Path,
		doc.MimeType,
		doc.SizeBytes,
		doc.AISummary,
		doc.Priority,
		doc.ActionRequired,
		doc.IsRead,
		doc.CreatedAt,
	)
	return scanDocument(row)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// ListByUser returns all documents for a user ordered by creation time descending.
func (r *DocumentPostgres) ListByUser(ctx context.Context, userID string) ([]model.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, q, userID)
}

// ListByDepartment returns all documents for a department ordered by creation time descending.
func (r *DocumentPostgres) ListByDepartment(ctx context.Context, department string) ([]model.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE department = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, q, department)
}

func (r *DocumentPostgres) list(ctx context.Context, query string, arg any) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateAnalysis replaces the four AI-derived columns in one statement.
func (r *DocumentPostgres) UpdateAnalysis(ctx context.Context, id string, a model.Analysis) error {
	const q = `
		UPDATE documents
		SET ai_summary = $2, department = $3, priority = $4, action_required = $5
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, id, a.Summary, a.Department, a.Priority, a.ActionRequired)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetRead updates the read flag.
func (r *DocumentPostgres) SetRead(ctx context.Context, id string, isRead bool) error {
	const q = `UPDATE documents SET is_read = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, isRead)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	// Ignore rows affected; deleting an absent row is not an error here.
	_, _ = res.RowsAffected()
	return nil
}
