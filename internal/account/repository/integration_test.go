//go:build integration

package repository

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/actor"
	"github.com/avivago/avivago-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()
	s, err := testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to start integration suite: %v", err)
	}
	suite = s

	code := m.Run()
	suite.DB.Close()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func seedUser(t *testing.T, ctx context.Context, opts ...func(*testutil.UserFixture)) testutil.UserFixture {
	t.Helper()
	u := suite.Fixtures.User(opts...)
	require.NoError(t, testutil.InsertUser(ctx, suite.DB, u))
	return u
}

func transition(userID string, event domain.DriverEvent, from, to domain.DriverStatus, reason string) domain.Transition {
	return domain.Transition{
		UserID:     userID,
		Event:      event,
		From:       from,
		To:         to,
		Reason:     reason,
		ActorID:    actor.SystemID,
		Visibility: domain.VisibilityFor(to, true),
	}
}

func TestIntegration_DriverLifecycle(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)

	u := seedUser(t, ctx)
	drivers := NewDriverRepository(suite.DB)

	profile := &domain.DriverProfile{UserID: u.ID, Status: domain.DriverDraft}
	require.NoError(t, drivers.Create(ctx, profile, u.ID))
	assert.False(t, profile.CreatedAt.IsZero())

	_, err := drivers.ApplyTransition(ctx, transition(u.ID, domain.EventSubmit, domain.DriverDraft, domain.DriverPendingApproval, ""), nil)
	require.NoError(t, err)

	reviewer := uuid.New().String()
	reject := transition(u.ID, domain.EventReject, domain.DriverPendingApproval, domain.DriverRejected, "blurry photo")
	reject.ActorID = reviewer
	rejected, err := drivers.ApplyTransition(ctx, reject, &reviewer)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverRejected, rejected.Status)
	require.NotNil(t, rejected.StatusReason)
	assert.Equal(t, "blurry photo", *rejected.StatusReason)
	require.NotNil(t, rejected.ReviewedBy)
	assert.Equal(t, reviewer, *rejected.ReviewedBy)
	assert.NotNil(t, rejected.ReviewedAt)
	assert.False(t, rejected.ProfileVisible)

	_, err = drivers.ApplyTransition(ctx, transition(u.ID, domain.EventResubmit, domain.DriverRejected, domain.DriverPendingApproval, ""), nil)
	require.NoError(t, err)

	approved, err := drivers.ApplyTransition(ctx, transition(u.ID, domain.EventApprove, domain.DriverPendingApproval, domain.DriverActive, ""), &reviewer)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverActive, approved.Status)
	assert.Nil(t, approved.StatusReason)
	assert.True(t, approved.ProfileVisible)
	assert.True(t, approved.QRVisible)
	assert.True(t, approved.ReferralVisible)

	history, err := drivers.History(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, domain.EventCreate, history[len(history)-1].Event)
}

func TestIntegration_StaleTransitionLeavesRowUntouched(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)

	u := seedUser(t, ctx)
	drivers := NewDriverRepository(suite.DB)
	require.NoError(t, drivers.Create(ctx, &domain.DriverProfile{UserID: u.ID, Status: domain.DriverDraft}, u.ID))

	// approve only applies from pending_approval
	_, err := drivers.ApplyTransition(ctx, transition(u.ID, domain.EventApprove, domain.DriverPendingApproval, domain.DriverActive, ""), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	profile, err := drivers.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverDraft, profile.Status)
	assert.False(t, profile.ProfileVisible)

	history, err := drivers.History(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestIntegration_ConcurrentReviewsApplyOnce(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)

	u := seedUser(t, ctx)
	drivers := NewDriverRepository(suite.DB)
	require.NoError(t, drivers.Create(ctx, &domain.DriverProfile{UserID: u.ID, Status: domain.DriverDraft}, u.ID))
	_, err := drivers.ApplyTransition(ctx, transition(u.ID, domain.EventSubmit, domain.DriverDraft, domain.DriverPendingApproval, ""), nil)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, tr := range []domain.Transition{
		transition(u.ID, domain.EventApprove, domain.DriverPendingApproval, domain.DriverActive, ""),
		transition(u.ID, domain.EventReject, domain.DriverPendingApproval, domain.DriverRejected, "mismatch"),
	} {
		wg.Add(1)
		go func(tr domain.Transition) {
			defer wg.Done()
			if _, err := drivers.ApplyTransition(ctx, tr, nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(tr)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)

	history, err := drivers.History(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestIntegration_DocumentsAndUserList(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)

	driver := seedUser(t, ctx, testutil.WithFullName("Juan Pérez García"))
	passenger := seedUser(t, ctx, testutil.WithUnconfirmedEmail())
	require.NoError(t, testutil.InsertMembership(ctx, suite.DB, suite.Fixtures.Membership(driver.ID, testutil.Hidden())))

	drivers := NewDriverRepository(suite.DB)
	require.NoError(t, drivers.Create(ctx, &domain.DriverProfile{UserID: driver.ID, Status: domain.DriverDraft}, driver.ID))

	documents := NewDocumentRepository(suite.DB)
	has, err := documents.HasIdentityDocument(ctx, driver.ID)
	require.NoError(t, err)
	assert.False(t, has)

	newer := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, documents.Upsert(ctx, &domain.DriverDocument{
		UserID: driver.ID, DocumentType: "national_id", JobID: uuid.New().String(),
		FieldsFound: []string{"full_name", "curp"}, ExtractedAt: newer,
	}))
	// A late, older event must not replace the newer document.
	require.NoError(t, documents.Upsert(ctx, &domain.DriverDocument{
		UserID: driver.ID, DocumentType: "national_id", JobID: uuid.New().String(),
		FieldsFound: []string{"full_name"}, ExtractedAt: newer.Add(-time.Minute),
	}))

	docs, err := documents.ListByUser(ctx, driver.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"full_name", "curp"}, docs[0].FieldsFound)

	has, err = documents.HasIdentityDocument(ctx, driver.ID)
	require.NoError(t, err)
	assert.True(t, has)

	users := NewUserRepository(suite.DB)
	all, total, err := users.List(ctx, domain.UserListParams{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	draft := domain.DriverDraft
	filtered, total, err := users.List(ctx, domain.UserListParams{DriverStatus: &draft, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, filtered, 1)
	assert.Equal(t, driver.ID, filtered[0].ID)
	require.NotNil(t, filtered[0].MembershipVisible)
	assert.False(t, *filtered[0].MembershipVisible)

	searched, _, err := users.List(ctx, domain.UserListParams{Search: "pérez", Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, driver.ID, searched[0].ID)

	got, err := users.GetByID(ctx, passenger.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountEmailPending, got.AccountStatus())

	membership, err := NewMembershipRepository(suite.DB).Get(ctx, passenger.ID)
	require.NoError(t, err)
	assert.Nil(t, membership)
}
