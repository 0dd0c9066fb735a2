package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/actor"
	apperrors "github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/logger"
)

// memoryDrivers mimics the guarded update of the SQL repository
type memoryDrivers struct {
	mu       sync.Mutex
	profiles map[string]*domain.DriverProfile
	history  []*domain.StatusHistoryEntry
	// beforeApply runs inside ApplyTransition to simulate a concurrent writer
	beforeApply func(p *domain.DriverProfile)
}

func newMemoryDrivers() *memoryDrivers {
	return &memoryDrivers{profiles: map[string]*domain.DriverProfile{}}
}

func (m *memoryDrivers) Get(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrNoDriverProfile
	}
	cp := *p
	return &cp, nil
}

func (m *memoryDrivers) Create(ctx context.Context, profile *domain.DriverProfile, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.UserID]; ok {
		return apperrors.Conflict("a driver profile already exists for this account")
	}
	cp := *profile
	m.profiles[profile.UserID] = &cp
	m.history = append(m.history, &domain.StatusHistoryEntry{UserID: profile.UserID, Event: domain.EventCreate, ToStatus: profile.Status, ActorID: actorID})
	return nil
}

func (m *memoryDrivers) ApplyTransition(ctx context.Context, t domain.Transition, reviewer *string) (*domain.DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[t.UserID]
	if m.beforeApply != nil {
		m.beforeApply(p)
	}

	allowed := false
	for _, s := range domain.ValidSources(t.Event) {
		if p.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, domain.ErrInvalidTransition
	}

	p.Status = t.To
	p.StatusReason = nil
	if t.Reason != "" {
		reason := t.Reason
		p.StatusReason = &reason
	}
	p.ReviewedBy = reviewer
	p.ProfileVisible = t.Visibility.Profile
	p.QRVisible = t.Visibility.QRCode
	p.ReferralVisible = t.Visibility.ReferralLink

	m.history = append(m.history, &domain.StatusHistoryEntry{UserID: t.UserID, Event: t.Event, ToStatus: t.To, ActorID: t.ActorID})
	cp := *p
	return &cp, nil
}

func (m *memoryDrivers) History(ctx context.Context, userID string) ([]*domain.StatusHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.StatusHistoryEntry{}
	for _, h := range m.history {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memoryUsers map[string]*domain.User

func (m memoryUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	return u, nil
}

func (m memoryUsers) List(ctx context.Context, params domain.UserListParams) ([]*domain.UserStatusRow, int64, error) {
	rows := []*domain.UserStatusRow{}
	for _, u := range m {
		rows = append(rows, &domain.UserStatusRow{User: *u})
	}
	return rows, int64(len(rows)), nil
}

type memoryMemberships map[string]*domain.Membership

func (m memoryMemberships) Get(ctx context.Context, userID string) (*domain.Membership, error) {
	return m[userID], nil
}

type memoryDocuments map[string]bool

func (m memoryDocuments) HasIdentityDocument(ctx context.Context, userID string) (bool, error) {
	return m[userID], nil
}

func (m memoryDocuments) ListByUser(ctx context.Context, userID string) ([]*domain.DriverDocument, error) {
	docs := []*domain.DriverDocument{}
	if m[userID] {
		docs = append(docs, &domain.DriverDocument{UserID: userID, DocumentType: "ine"})
	}
	return docs, nil
}

type recordedEvents struct {
	created     []*domain.DriverProfile
	transitions []domain.Transition
}

func (r *recordedEvents) PublishProfileCreated(ctx context.Context, profile *domain.DriverProfile) {
	r.created = append(r.created, profile)
}

func (r *recordedEvents) PublishStatusChanged(ctx context.Context, t domain.Transition) {
	r.transitions = append(r.transitions, t)
}

const (
	driverID = "driver-1"
	adminID  = "admin-1"
)

type fixture struct {
	svc         *LifecycleService
	drivers     *memoryDrivers
	memberships memoryMemberships
	documents   memoryDocuments
	events      *recordedEvents
}

func newFixture(freeEnrollment bool) *fixture {
	confirmed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fixture{
		drivers:     newMemoryDrivers(),
		memberships: memoryMemberships{driverID: {UserID: driverID, Visible: true}},
		documents:   memoryDocuments{},
		events:      &recordedEvents{},
	}
	users := memoryUsers{
		driverID:      {ID: driverID, Email: "driver@example.com", FullName: "Ana Driver", PhoneNumber: "555-1234", EmailConfirmedAt: &confirmed},
		"passenger-1": {ID: "passenger-1", Email: "p@example.com"},
	}
	f.svc = NewLifecycleService(users, f.drivers, f.memberships, f.documents, f.events, freeEnrollment, logger.Nop())
	return f
}

func adminCtx() context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{ID: adminID, Email: "admin@example.com", Role: "admin"})
}

func driverCtx() context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{ID: driverID, Role: "driver"})
}

func TestCreateDriverProfile_StartsAsDraft(t *testing.T) {
	f := newFixture(false)

	profile, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverDraft, profile.Status)
	assert.Equal(t, domain.Visibility{}, profile.Visibility())
	assert.Len(t, f.events.created, 1)
	assert.Empty(t, f.events.transitions)

	_, err = f.svc.CreateDriverProfile(driverCtx(), driverID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCreateDriverProfile_FreeEnrollment(t *testing.T) {
	f := newFixture(true)

	profile, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverActive, profile.Status)
	assert.True(t, profile.ProfileVisible)

	require.Len(t, f.events.transitions, 1)
	assert.Equal(t, domain.EventEnrollFree, f.events.transitions[0].Event)
	assert.Equal(t, actor.SystemID, f.events.transitions[0].ActorID)
}

func TestSubmit_RequiresDocument(t *testing.T) {
	f := newFixture(false)
	_, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)

	_, err = f.svc.Submit(driverCtx(), driverID)
	assert.ErrorIs(t, err, apperrors.ErrUnprocessable)

	f.documents[driverID] = true
	profile, err := f.svc.Submit(driverCtx(), driverID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverPendingApproval, profile.Status)
	assert.Nil(t, profile.ReviewedBy)
}

func TestSubmit_WithoutProfileIsNotApplicable(t *testing.T) {
	f := newFixture(false)

	_, err := f.svc.Submit(driverCtx(), driverID)
	assert.ErrorIs(t, err, apperrors.ErrNotApplicable)
}

func TestFullReviewCycle(t *testing.T) {
	f := newFixture(false)
	f.documents[driverID] = true

	_, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)
	_, err = f.svc.Submit(driverCtx(), driverID)
	require.NoError(t, err)

	profile, err := f.svc.Review(adminCtx(), driverID, domain.EventReject, "photo unreadable")
	require.NoError(t, err)
	assert.Equal(t, domain.DriverRejected, profile.Status)
	require.NotNil(t, profile.StatusReason)
	assert.Equal(t, "photo unreadable", *profile.StatusReason)
	require.NotNil(t, profile.ReviewedBy)
	assert.Equal(t, adminID, *profile.ReviewedBy)

	for i := 0; i < 2; i++ {
		profile, err = f.svc.Resubmit(driverCtx(), driverID)
		require.NoError(t, err)
		assert.Equal(t, domain.DriverPendingApproval, profile.Status)
	}

	profile, err = f.svc.Review(adminCtx(), driverID, domain.EventApprove, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DriverActive, profile.Status)
	assert.Equal(t, domain.Visibility{Profile: true, QRCode: true, ReferralLink: true}, profile.Visibility())

	profile, err = f.svc.Review(adminCtx(), driverID, domain.EventSuspend, "multiple complaints")
	require.NoError(t, err)
	assert.Equal(t, domain.DriverSuspended, profile.Status)
	assert.Equal(t, domain.Visibility{}, profile.Visibility(), "suspension hides every public surface in the same update")

	profile, err = f.svc.Review(adminCtx(), driverID, domain.EventReinstate, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DriverActive, profile.Status)
	assert.True(t, profile.QRVisible)

	history, err := f.svc.History(adminCtx(), driverID)
	require.NoError(t, err)
	assert.Len(t, history, 7, "repeated resubmit records nothing")
}

func TestReview_ActivationRespectsMembership(t *testing.T) {
	f := newFixture(false)
	f.documents[driverID] = true
	f.memberships[driverID].Visible = false

	_, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)
	_, err = f.svc.Submit(driverCtx(), driverID)
	require.NoError(t, err)

	profile, err := f.svc.Review(adminCtx(), driverID, domain.EventApprove, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DriverActive, profile.Status)
	assert.Equal(t, domain.Visibility{}, profile.Visibility())

	view, err := f.svc.Status(driverCtx(), driverID)
	require.NoError(t, err)
	assert.Equal(t, domain.PublicActiveHidden, view.PublicState)
}

func TestReview_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	f := newFixture(true)
	_, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)

	published := len(f.events.transitions)

	_, err = f.svc.Resubmit(driverCtx(), driverID)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_TRANSITION", appErr.Code)
	assert.Equal(t, map[string]string{"from": "active", "event": "resubmit"}, appErr.Params)

	profile, err := f.drivers.Get(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriverActive, profile.Status)
	assert.Len(t, f.events.transitions, published)
}

func TestReview_ReasonRequired(t *testing.T) {
	f := newFixture(true)
	_, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)

	_, err = f.svc.Review(adminCtx(), driverID, domain.EventSuspend, " ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestReview_RejectsNonAdminEvents(t *testing.T) {
	f := newFixture(false)
	_, err := f.svc.Review(adminCtx(), driverID, domain.EventSubmit, "")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestReview_ConcurrentChangeIsRejected(t *testing.T) {
	f := newFixture(true)
	_, err := f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)

	// Another admin suspends the driver between our read and our write
	f.drivers.beforeApply = func(p *domain.DriverProfile) {
		p.Status = domain.DriverSuspended
		f.drivers.beforeApply = nil
	}

	_, err = f.svc.Review(adminCtx(), driverID, domain.EventSuspend, "late payments")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	profile, _ := f.drivers.Get(context.Background(), driverID)
	assert.Equal(t, domain.DriverSuspended, profile.Status)
	assert.Nil(t, profile.StatusReason)
}

func TestStatus(t *testing.T) {
	f := newFixture(false)

	view, err := f.svc.Status(context.Background(), "passenger-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountEmailPending, view.AccountStatus)
	assert.Equal(t, domain.DriverNotApplicable, view.DriverStatus)
	assert.Nil(t, view.Visibility)

	_, err = f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)

	view, err = f.svc.Status(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountValidated, view.AccountStatus)
	assert.Equal(t, domain.DriverDraft, view.DriverStatus)
	assert.Equal(t, domain.PublicNone, view.PublicState)
}

func TestListUsers_ShowsBothBadges(t *testing.T) {
	f := newFixture(false)

	views, total, err := f.svc.ListUsers(context.Background(), domain.UserListParams{Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, v := range views {
		assert.NotEmpty(t, v.AccountStatus)
		assert.Equal(t, domain.DriverNotApplicable, v.DriverStatus)
	}
}

func TestHistory_WithoutProfile(t *testing.T) {
	f := newFixture(false)
	_, err := f.svc.History(adminCtx(), "passenger-1")
	assert.ErrorIs(t, err, apperrors.ErrNotApplicable)
}

func TestDocuments(t *testing.T) {
	f := newFixture(false)

	_, err := f.svc.Documents(adminCtx(), driverID)
	assert.ErrorIs(t, err, apperrors.ErrNotApplicable)

	_, err = f.svc.CreateDriverProfile(driverCtx(), driverID)
	require.NoError(t, err)

	docs, err := f.svc.Documents(adminCtx(), driverID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	f.documents[driverID] = true
	docs, err = f.svc.Documents(adminCtx(), driverID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ine", docs[0].DocumentType)
}
