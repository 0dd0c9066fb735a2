package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/database"
	"github.com/avivago/avivago-backend/pkg/errors"
)

const userID = "2b7f3c1e-8f7d-4a55-9a57-0a3e6c1d9b10"
const adminID = "9c1d2e3f-4a5b-4c6d-8e7f-0a1b2c3d4e5f"

func newMock(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return database.Wrap(sqlx.NewDb(raw, "postgres"), nil), mock
}

var profileColumns = []string{
	"user_id", "status", "status_reason", "reviewed_by", "reviewed_at",
	"profile_visible", "qr_visible", "referral_visible", "created_at", "updated_at",
}

func TestDriverRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDriverRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM driver_profiles")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(userID, "active", nil, adminID, now, true, true, true, now, now))

	profile, err := repo.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverActive, profile.Status)
	assert.True(t, profile.Visibility().Profile)

	mock.ExpectQuery(regexp.QuoteMeta("FROM driver_profiles")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNoDriverProfile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDriverRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO driver_profiles")).
		WithArgs(userID, domain.DriverDraft, false, false, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO driver_status_history")).
		WithArgs(sqlmock.AnyArg(), userID, domain.EventCreate, nil, domain.DriverDraft, nil, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	profile := &domain.DriverProfile{UserID: userID, Status: domain.DriverDraft}
	require.NoError(t, repo.Create(context.Background(), profile, userID))
	assert.Equal(t, now, profile.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverRepository_Create_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDriverRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO driver_profiles")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "driver_profiles_pkey"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &domain.DriverProfile{UserID: userID, Status: domain.DriverDraft}, userID)
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverRepository_ApplyTransition(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDriverRepository(db)
	now := time.Now().UTC()
	reason := "expired license"

	transition := domain.Transition{
		UserID:  userID,
		Event:   domain.EventSuspend,
		From:    domain.DriverActive,
		To:      domain.DriverSuspended,
		Reason:  reason,
		ActorID: adminID,
	}
	reviewer := adminID

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE driver_profiles SET")).
		WithArgs(userID, domain.DriverSuspended, &reason, &reviewer, false, false, false, pq.Array([]string{"active"})).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(userID, "suspended", reason, adminID, now, false, false, false, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO driver_status_history")).
		WithArgs(sqlmock.AnyArg(), userID, domain.EventSuspend, "active", domain.DriverSuspended, reason, adminID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	profile, err := repo.ApplyTransition(context.Background(), transition, &reviewer)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverSuspended, profile.Status)
	require.NotNil(t, profile.StatusReason)
	assert.Equal(t, reason, *profile.StatusReason)
	assert.Equal(t, domain.Visibility{}, profile.Visibility())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverRepository_ApplyTransition_StaleState(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDriverRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE driver_profiles SET")).
		WillReturnRows(sqlmock.NewRows(profileColumns))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), domain.Transition{
		UserID: userID, Event: domain.EventApprove, From: domain.DriverPendingApproval, To: domain.DriverActive, ActorID: adminID,
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_List(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()
	status := domain.DriverPendingApproval

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("pending_approval", "ana").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY u.created_at DESC")).
		WithArgs("pending_approval", "ana", 20, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "full_name", "phone_number", "email_confirmed_at", "role", "created_at", "updated_at",
			"driver_status", "status_reason", "membership_visible", "membership_expires_at",
		}).AddRow(userID, "ana@example.com", "Ana", "555", now, "driver", now, now, "pending_approval", nil, true, nil))

	rows, total, err := repo.List(context.Background(), domain.UserListParams{
		DriverStatus: &status, Search: "ana", Page: 2, PerPage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "ana@example.com", rows[0].Email)
	require.NotNil(t, rows[0].DriverStatus)
	assert.Equal(t, "pending_approval", *rows[0].DriverStatus)
	assert.Equal(t, domain.AccountValidated, rows[0].User.AccountStatus())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).WithArgs(userID).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), userID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMembershipRepository_GetMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMembershipRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM memberships")).WithArgs(userID).WillReturnError(sql.ErrNoRows)

	m, err := repo.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestDocumentRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)
	extractedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, document_type)")).
		WithArgs(sqlmock.AnyArg(), userID, "ine", "job-1", pq.Array([]string{"name", "national_id_code"}), extractedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), &domain.DriverDocument{
		UserID: userID, DocumentType: "ine", JobID: "job-1",
		FieldsFound: []string{"name", "national_id_code"}, ExtractedAt: extractedAt,
	}))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasIdentityDocument(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("FROM driver_documents")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "document_type", "job_id", "fields_found", "extracted_at"}).
			AddRow("d1", userID, "ine", "job-1", "{name,national_id_code}", extractedAt))

	docs, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"name", "national_id_code"}, docs[0].FieldsFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
