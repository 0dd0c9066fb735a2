package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/database"
)

// MembershipRepository reads memberships written by the billing flow
type MembershipRepository struct {
	db *database.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *database.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Get returns the user's membership, or nil when the user has none
func (r *MembershipRepository) Get(ctx context.Context, userID string) (*domain.Membership, error) {
	var m domain.Membership
	query := `SELECT user_id, plan, visible, expires_at, updated_at FROM memberships WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &m, query, userID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
