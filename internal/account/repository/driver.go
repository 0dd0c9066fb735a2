package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/database"
)

// DriverRepository persists driver profiles and their status history
type DriverRepository struct {
	db *database.DB
}

// NewDriverRepository creates a new driver repository
func NewDriverRepository(db *database.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

// Get returns the driver profile for a user, or domain.ErrNoDriverProfile
func (r *DriverRepository) Get(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	var profile domain.DriverProfile
	query := `
		SELECT user_id, status, status_reason, reviewed_by, reviewed_at,
		       profile_visible, qr_visible, referral_visible, created_at, updated_at
		FROM driver_profiles
		WHERE user_id = $1
	`
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoDriverProfile
		}
		return nil, err
	}
	return &profile, nil
}

// Create inserts a draft driver profile and its first history entry
func (r *DriverRepository) Create(ctx context.Context, profile *domain.DriverProfile, actorID string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO driver_profiles (user_id, status, profile_visible, qr_visible, referral_visible)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			profile.UserID, profile.Status,
			profile.ProfileVisible, profile.QRVisible, profile.ReferralVisible,
		).Scan(&profile.CreatedAt, &profile.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}

		return insertHistory(ctx, tx, profile.UserID, domain.EventCreate, nil, profile.Status, "", actorID)
	})
}

// ApplyTransition stores a validated transition. The update only matches
// while the stored status is still one of the event's source states, so a
// concurrent change makes it fail with domain.ErrInvalidTransition and leaves
// the row untouched. Status, reason, reviewer and all visibility flags change
// in the same statement.
func (r *DriverRepository) ApplyTransition(ctx context.Context, t domain.Transition, reviewer *string) (*domain.DriverProfile, error) {
	sources := domain.ValidSources(t.Event)
	allowed := make([]string, len(sources))
	for i, s := range sources {
		allowed[i] = string(s)
	}

	var reason *string
	if t.Reason != "" {
		reason = &t.Reason
	}

	var profile domain.DriverProfile
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE driver_profiles SET
				status = $2,
				status_reason = $3,
				reviewed_by = $4,
				reviewed_at = CASE WHEN $4::uuid IS NULL THEN NULL ELSE NOW() END,
				profile_visible = $5,
				qr_visible = $6,
				referral_visible = $7
			WHERE user_id = $1 AND status = ANY($8)
			RETURNING user_id, status, status_reason, reviewed_by, reviewed_at,
			          profile_visible, qr_visible, referral_visible, created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			t.UserID, t.To, reason, reviewer,
			t.Visibility.Profile, t.Visibility.QRCode, t.Visibility.ReferralLink,
			pq.Array(allowed),
		).StructScan(&profile)
		if stderrors.Is(err, sql.ErrNoRows) {
			return domain.ErrInvalidTransition
		}
		if err != nil {
			return err
		}

		from := t.From
		return insertHistory(ctx, tx, t.UserID, t.Event, &from, t.To, t.Reason, t.ActorID)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// History returns the status changes of a driver, newest first
func (r *DriverRepository) History(ctx context.Context, userID string) ([]*domain.StatusHistoryEntry, error) {
	entries := []*domain.StatusHistoryEntry{}
	query := `
		SELECT id, user_id, event, from_status, to_status, reason, actor_id, created_at
		FROM driver_status_history
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &entries, query, userID); err != nil {
		return nil, err
	}
	return entries, nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, userID string, event domain.DriverEvent, from *domain.DriverStatus, to domain.DriverStatus, reason, actorID string) error {
	var fromStatus, reasonText *string
	if from != nil {
		s := string(*from)
		fromStatus = &s
	}
	if reason != "" {
		reasonText = &reason
	}

	query := `
		INSERT INTO driver_status_history (id, user_id, event, from_status, to_status, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query, uuid.New().String(), userID, event, fromStatus, to, reasonText, actorID)
	return err
}
