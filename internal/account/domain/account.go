package domain

import "time"

// User holds the account facts the status badges are derived from
type User struct {
	ID               string     `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	FullName         string     `json:"full_name" db:"full_name"`
	PhoneNumber      string     `json:"phone_number" db:"phone_number"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty" db:"email_confirmed_at"`
	Role             string     `json:"role" db:"role"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// AccountStatus evaluates the user's passenger badge
func (u *User) AccountStatus() AccountStatus {
	return EvaluateAccountStatus(u.EmailConfirmedAt, u.FullName, u.PhoneNumber)
}

// DriverProfile is the operator side of an account
type DriverProfile struct {
	UserID          string       `json:"user_id" db:"user_id"`
	Status          DriverStatus `json:"status" db:"status"`
	StatusReason    *string      `json:"status_reason,omitempty" db:"status_reason"`
	ReviewedBy      *string      `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ProfileVisible  bool         `json:"profile_visible" db:"profile_visible"`
	QRVisible       bool         `json:"qr_visible" db:"qr_visible"`
	ReferralVisible bool         `json:"referral_visible" db:"referral_visible"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// Visibility returns the stored visibility flags
func (p *DriverProfile) Visibility() Visibility {
	return Visibility{Profile: p.ProfileVisible, QRCode: p.QRVisible, ReferralLink: p.ReferralVisible}
}

// Membership gates whether an active driver is publicly visible
type Membership struct {
	UserID    string     `json:"user_id" db:"user_id"`
	Plan      string     `json:"plan" db:"plan"`
	Visible   bool       `json:"visible" db:"visible"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// VisibleAt reports whether the membership grants visibility at t. A nil
// membership grants none.
func (m *Membership) VisibleAt(t time.Time) bool {
	if m == nil || !m.Visible {
		return false
	}
	return m.ExpiresAt == nil || m.ExpiresAt.After(t)
}

// Transition is a validated driver status change ready to be persisted
type Transition struct {
	UserID     string
	Event      DriverEvent
	From       DriverStatus
	To         DriverStatus
	Reason     string
	ActorID    string
	Visibility Visibility
}

// StatusHistoryEntry records one applied transition
type StatusHistoryEntry struct {
	ID         string       `json:"id" db:"id"`
	UserID     string       `json:"user_id" db:"user_id"`
	Event      DriverEvent  `json:"event" db:"event"`
	FromStatus *string      `json:"from_status,omitempty" db:"from_status"`
	ToStatus   DriverStatus `json:"to_status" db:"to_status"`
	Reason     *string      `json:"reason,omitempty" db:"reason"`
	ActorID    string       `json:"actor_id" db:"actor_id"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// DriverDocument notes that an identity document was read for a driver.
// Only the names of the fields found are kept.
type DriverDocument struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	DocumentType string    `json:"document_type" db:"document_type"`
	JobID        string    `json:"job_id" db:"job_id"`
	FieldsFound  []string  `json:"fields_found" db:"fields_found"`
	ExtractedAt  time.Time `json:"extracted_at" db:"extracted_at"`
}

// StatusView is what dashboards and admin lists render: both badges side by
// side, never merged.
type StatusView struct {
	UserID        string        `json:"user_id"`
	Email         string        `json:"email,omitempty"`
	FullName      string        `json:"full_name,omitempty"`
	AccountStatus AccountStatus `json:"account_status"`
	DriverStatus  DriverStatus  `json:"driver_status"`
	StatusReason  *string       `json:"status_reason,omitempty"`
	PublicState   PublicState   `json:"public_state,omitempty"`
	Visibility    *Visibility   `json:"visibility,omitempty"`

	AccountStatusLabel string `json:"account_status_label,omitempty"`
	DriverStatusLabel  string `json:"driver_status_label,omitempty"`
}

// UserStatusRow is one row of the admin user list, joined across users,
// driver profiles and memberships.
type UserStatusRow struct {
	User
	DriverStatus      *string    `db:"driver_status"`
	StatusReason      *string    `db:"status_reason"`
	MembershipVisible *bool      `db:"membership_visible"`
	MembershipExpires *time.Time `db:"membership_expires_at"`
}

// UserListParams filters the admin user list
type UserListParams struct {
	DriverStatus *DriverStatus
	Search       string
	Page         int
	PerPage      int
}
