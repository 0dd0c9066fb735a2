package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/database"
	"github.com/avivago/avivago-backend/pkg/errors"
)

// UserRepository reads account facts. Users are created by the registration
// flow, not by this service.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, email, full_name, phone_number, email_confirmed_at, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("user")
		}
		return nil, err
	}
	return &user, nil
}

// List returns a page of users with their driver profile and membership, for
// the admin list. Filtering by driver status excludes accounts without a
// driver profile.
func (r *UserRepository) List(ctx context.Context, params domain.UserListParams) ([]*domain.UserStatusRow, int64, error) {
	var status *string
	if params.DriverStatus != nil {
		s := string(*params.DriverStatus)
		status = &s
	}

	const filter = `
		FROM users u
		LEFT JOIN driver_profiles d ON d.user_id = u.id
		LEFT JOIN memberships m ON m.user_id = u.id
		WHERE ($1::text IS NULL OR d.status = $1)
		  AND ($2 = '' OR u.email ILIKE '%' || $2 || '%' OR u.full_name ILIKE '%' || $2 || '%')
	`

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) `+filter, status, params.Search); err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.PerPage
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT u.id, u.email, u.full_name, u.phone_number, u.email_confirmed_at, u.role,
		       u.created_at, u.updated_at,
		       d.status AS driver_status, d.status_reason,
		       m.visible AS membership_visible, m.expires_at AS membership_expires_at
	` + filter + `
		ORDER BY u.created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows := []*domain.UserStatusRow{}
	if err := r.db.SelectContext(ctx, &rows, query, status, params.Search, params.PerPage, offset); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
