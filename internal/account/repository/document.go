package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/database"
)

// DocumentRepository tracks which identity documents a driver has had read
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert records a document, replacing an earlier one of the same type.
// Older extraction events never overwrite newer ones.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.DriverDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.FieldsFound == nil {
		doc.FieldsFound = []string{}
	}

	query := `
		INSERT INTO driver_documents (id, user_id, document_type, job_id, fields_found, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, document_type) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			fields_found = EXCLUDED.fields_found,
			extracted_at = EXCLUDED.extracted_at
		WHERE driver_documents.extracted_at <= EXCLUDED.extracted_at
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.UserID, doc.DocumentType, doc.JobID, pq.Array(doc.FieldsFound), doc.ExtractedAt,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListByUser returns the documents recorded for a user
func (r *DocumentRepository) ListByUser(ctx context.Context, userID string) ([]*domain.DriverDocument, error) {
	query := `
		SELECT id, user_id, document_type, job_id, fields_found, extracted_at
		FROM driver_documents
		WHERE user_id = $1
		ORDER BY extracted_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*domain.DriverDocument{}
	for rows.Next() {
		d := &domain.DriverDocument{}
		if err := rows.Scan(&d.ID, &d.UserID, &d.DocumentType, &d.JobID, pq.Array(&d.FieldsFound), &d.ExtractedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// HasIdentityDocument reports whether any identity document was read for the user
func (r *DocumentRepository) HasIdentityDocument(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM driver_documents WHERE user_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, userID); err != nil {
		return false, err
	}
	return exists, nil
}
