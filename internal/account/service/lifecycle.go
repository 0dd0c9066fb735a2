package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/actor"
	"github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/logger"
)

// UserStore reads account facts
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context, params domain.UserListParams) ([]*domain.UserStatusRow, int64, error)
}

// DriverStore persists driver profiles
type DriverStore interface {
	Get(ctx context.Context, userID string) (*domain.DriverProfile, error)
	Create(ctx context.Context, profile *domain.DriverProfile, actorID string) error
	ApplyTransition(ctx context.Context, t domain.Transition, reviewer *string) (*domain.DriverProfile, error)
	History(ctx context.Context, userID string) ([]*domain.StatusHistoryEntry, error)
}

// MembershipStore reads memberships
type MembershipStore interface {
	Get(ctx context.Context, userID string) (*domain.Membership, error)
}

// DocumentStore tells which identity documents have been read for a driver
type DocumentStore interface {
	HasIdentityDocument(ctx context.Context, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.DriverDocument, error)
}

// EventPublisher announces driver lifecycle changes
type EventPublisher interface {
	PublishProfileCreated(ctx context.Context, profile *domain.DriverProfile)
	PublishStatusChanged(ctx context.Context, t domain.Transition)
}

// LifecycleService applies driver status transitions and builds status views
type LifecycleService struct {
	users          UserStore
	drivers        DriverStore
	memberships    MembershipStore
	documents      DocumentStore
	events         EventPublisher
	freeEnrollment bool
	log            *logger.Logger
	now            func() time.Time
}

// NewLifecycleService creates a new lifecycle service. With freeEnrollment
// new driver profiles are activated right after creation.
func NewLifecycleService(
	users UserStore,
	drivers DriverStore,
	memberships MembershipStore,
	documents DocumentStore,
	events EventPublisher,
	freeEnrollment bool,
	log *logger.Logger,
) *LifecycleService {
	return &LifecycleService{
		users:          users,
		drivers:        drivers,
		memberships:    memberships,
		documents:      documents,
		events:         events,
		freeEnrollment: freeEnrollment,
		log:            log.WithComponent("driver-lifecycle"),
		now:            time.Now,
	}
}

// Status returns both badges for a user
func (s *LifecycleService) Status(ctx context.Context, userID string) (*domain.StatusView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := s.drivers.Get(ctx, userID)
	if err != nil && !stderrors.Is(err, domain.ErrNoDriverProfile) {
		return nil, err
	}

	view := &domain.StatusView{
		UserID:        user.ID,
		Email:         user.Email,
		FullName:      user.FullName,
		AccountStatus: user.AccountStatus(),
		DriverStatus:  domain.DriverStatusView(profile),
	}
	if profile == nil {
		return view, nil
	}

	membership, err := s.memberships.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	visibility := profile.Visibility()
	view.StatusReason = profile.StatusReason
	view.Visibility = &visibility
	view.PublicState = domain.PublicStateFor(profile.Status, membership.VisibleAt(s.now()))
	return view, nil
}

// CreateDriverProfile opens a driver profile for an existing account
func (s *LifecycleService) CreateDriverProfile(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	profile := &domain.DriverProfile{UserID: userID, Status: domain.DriverDraft}
	if err := s.drivers.Create(ctx, profile, actor.OrSystem(ctx).ID); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", userID).Msg("driver profile created")
	s.events.PublishProfileCreated(ctx, profile)

	if !s.freeEnrollment {
		return profile, nil
	}
	return s.transition(ctx, userID, domain.EventEnrollFree, "", actor.System(), false)
}

// Submit sends a draft profile for review. An identity document must have
// been read first.
func (s *LifecycleService) Submit(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	if _, err := s.drivers.Get(ctx, userID); err != nil {
		return nil, mapDomainError(err, "", string(domain.EventSubmit))
	}

	hasDocument, err := s.documents.HasIdentityDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasDocument {
		return nil, errors.Unprocessable("errors.documents_missing", "an identity document must be uploaded before submitting")
	}
	return s.transition(ctx, userID, domain.EventSubmit, "", actor.OrSystem(ctx), false)
}

// Resubmit sends a rejected profile back for review. Repeating it while the
// profile is already pending is a no-op.
func (s *LifecycleService) Resubmit(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	return s.transition(ctx, userID, domain.EventResubmit, "", actor.OrSystem(ctx), false)
}

// Review applies an administrator decision: approve, reject, suspend or reinstate
func (s *LifecycleService) Review(ctx context.Context, userID string, event domain.DriverEvent, reason string) (*domain.DriverProfile, error) {
	switch event {
	case domain.EventApprove, domain.EventReject, domain.EventSuspend, domain.EventReinstate:
	default:
		return nil, errors.BadRequest("unsupported review action: " + string(event))
	}
	return s.transition(ctx, userID, event, reason, actor.OrSystem(ctx), true)
}

// History returns the status changes of a driver
func (s *LifecycleService) History(ctx context.Context, userID string) ([]*domain.StatusHistoryEntry, error) {
	if _, err := s.drivers.Get(ctx, userID); err != nil {
		return nil, mapDomainError(err, "", "")
	}
	return s.drivers.History(ctx, userID)
}

// Documents returns the identity documents recorded for a driver, newest first
func (s *LifecycleService) Documents(ctx context.Context, userID string) ([]*domain.DriverDocument, error) {
	if _, err := s.drivers.Get(ctx, userID); err != nil {
		return nil, mapDomainError(err, "", "")
	}
	return s.documents.ListByUser(ctx, userID)
}

// ListUsers returns a page of users with both badges each
func (s *LifecycleService) ListUsers(ctx context.Context, params domain.UserListParams) ([]*domain.StatusView, int64, error) {
	rows, total, err := s.users.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	views := make([]*domain.StatusView, 0, len(rows))
	for _, row := range rows {
		view := &domain.StatusView{
			UserID:        row.ID,
			Email:         row.Email,
			FullName:      row.FullName,
			AccountStatus: row.User.AccountStatus(),
			DriverStatus:  domain.DriverNotApplicable,
		}
		if row.DriverStatus != nil {
			membership := &domain.Membership{ExpiresAt: row.MembershipExpires}
			if row.MembershipVisible != nil {
				membership.Visible = *row.MembershipVisible
			}
			view.DriverStatus = domain.DriverStatus(*row.DriverStatus)
			view.StatusReason = row.StatusReason
			view.PublicState = domain.PublicStateFor(view.DriverStatus, membership.VisibleAt(now))
		}
		views = append(views, view)
	}
	return views, total, nil
}

// transition validates an event against the stored status and persists it
// with the visibility that goes with the new status.
func (s *LifecycleService) transition(ctx context.Context, userID string, event domain.DriverEvent, reason string, by *actor.Actor, review bool) (*domain.DriverProfile, error) {
	profile, err := s.drivers.Get(ctx, userID)
	if err != nil {
		return nil, mapDomainError(err, "", string(event))
	}

	to, err := domain.NextDriverStatus(profile.Status, event, reason)
	if err != nil {
		return nil, mapDomainError(err, string(profile.Status), string(event))
	}
	if to == profile.Status {
		return profile, nil
	}

	membership, err := s.memberships.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	t := domain.Transition{
		UserID:     userID,
		Event:      event,
		From:       profile.Status,
		To:         to,
		Reason:     reason,
		ActorID:    by.ID,
		Visibility: domain.VisibilityFor(to, membership.VisibleAt(s.now())),
	}

	var reviewer *string
	if review {
		id := by.ID
		reviewer = &id
	}

	updated, err := s.drivers.ApplyTransition(ctx, t, reviewer)
	if err != nil {
		if stderrors.Is(err, domain.ErrInvalidTransition) {
			s.log.Warn().
				Str("user_id", userID).
				Str("event", string(event)).
				Str("from", string(profile.Status)).
				Msg("driver status changed concurrently, transition rejected")
		}
		return nil, mapDomainError(err, string(profile.Status), string(event))
	}

	s.log.Info().
		Str("user_id", userID).
		Str("event", string(event)).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Str("actor", by.String()).
		Msg("driver status changed")

	s.events.PublishStatusChanged(ctx, t)
	return updated, nil
}

func mapDomainError(err error, from, event string) error {
	switch {
	case stderrors.Is(err, domain.ErrNoDriverProfile):
		return errors.NotApplicable()
	case stderrors.Is(err, domain.ErrInvalidTransition):
		return errors.InvalidTransition(from, event)
	case stderrors.Is(err, domain.ErrReasonRequired):
		return errors.ReasonRequired()
	default:
		return err
	}
}
