package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/avivago/avivago-backend/internal/identity/domain"
	"github.com/avivago/avivago-backend/pkg/database"
)

// AuditRepository records finished extractions. Only field names are stored,
// never the values read from the document.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *domain.VerificationAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.FieldsFound == nil {
		entry.FieldsFound = []string{}
	}

	query := `
		INSERT INTO identity_verification_audit
			(id, job_id, user_id, document_type, status, fields_found, error_message, consent_at, processing_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.JobID,
		entry.UserID,
		entry.DocumentType,
		entry.Status,
		pq.Array(entry.FieldsFound),
		entry.ErrorMessage,
		entry.ConsentAt,
		entry.ProcessingMs,
		entry.CreatedAt,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListByUser returns the most recent audit entries for a user
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.VerificationAuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, job_id, user_id, document_type, status, fields_found, error_message, consent_at, processing_ms, created_at
		FROM identity_verification_audit
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*domain.VerificationAuditEntry{}
	for rows.Next() {
		e := &domain.VerificationAuditEntry{}
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.UserID, &e.DocumentType, &e.Status,
			pq.Array(&e.FieldsFound), &e.ErrorMessage, &e.ConsentAt, &e.ProcessingMs, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
