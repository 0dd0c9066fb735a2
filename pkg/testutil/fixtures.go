package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avivago/avivago-backend/pkg/database"
)

// UserFixture represents test user data
type UserFixture struct {
	ID               string
	Email            string
	FullName         string
	PhoneNumber      string
	EmailConfirmedAt *time.Time
	Role             string
	CreatedAt        time.Time
}

// MembershipFixture represents test membership data
type MembershipFixture struct {
	UserID    string
	Plan      string
	Visible   bool
	ExpiresAt *time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// User creates a confirmed, fully filled-in user fixture
func (f *FixtureFactory) User(opts ...func(*UserFixture)) UserFixture {
	seq := f.nextSeq()
	confirmed := time.Now().Add(-time.Hour).UTC()

	user := UserFixture{
		ID:               uuid.New().String(),
		Email:            fmt.Sprintf("user%d@test.avivago.mx", seq),
		FullName:         fmt.Sprintf("Usuario Prueba %d", seq),
		PhoneNumber:      fmt.Sprintf("+52 33 1000 %04d", seq),
		EmailConfirmedAt: &confirmed,
		Role:             "driver",
		CreatedAt:        time.Now().UTC().Add(time.Duration(seq) * time.Second),
	}

	for _, opt := range opts {
		opt(&user)
	}

	return user
}

// WithEmail sets the user email
func WithEmail(email string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.Email = email
	}
}

// WithFullName sets the user's display name
func WithFullName(name string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.FullName = name
	}
}

// WithUnconfirmedEmail clears the email confirmation
func WithUnconfirmedEmail() func(*UserFixture) {
	return func(u *UserFixture) {
		u.EmailConfirmedAt = nil
	}
}

// WithPhone sets the user's phone number
func WithPhone(phone string) func(*UserFixture) {
	return func(u *UserFixture) {
		u.PhoneNumber = phone
	}
}

// Membership creates a visible, non-expiring membership for userID
func (f *FixtureFactory) Membership(userID string, opts ...func(*MembershipFixture)) MembershipFixture {
	m := MembershipFixture{UserID: userID, Plan: "free", Visible: true}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Hidden marks a membership as not visible
func Hidden() func(*MembershipFixture) {
	return func(m *MembershipFixture) {
		m.Visible = false
	}
}

// ExpiresAt sets the membership expiry
func ExpiresAt(t time.Time) func(*MembershipFixture) {
	return func(m *MembershipFixture) {
		m.ExpiresAt = &t
	}
}

// InsertUser writes a user fixture
func InsertUser(ctx context.Context, db *database.DB, u UserFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, phone_number, email_confirmed_at, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, u.ID, u.Email, u.FullName, u.PhoneNumber, u.EmailConfirmedAt, u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user fixture: %w", err)
	}
	return nil
}

// InsertMembership writes a membership fixture
func InsertMembership(ctx context.Context, db *database.DB, m MembershipFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO memberships (user_id, plan, visible, expires_at)
		VALUES ($1, $2, $3, $4)
	`, m.UserID, m.Plan, m.Visible, m.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert membership fixture: %w", err)
	}
	return nil
}
