package domain

import (
	"errors"
	"strings"
	"time"
)

// AccountStatus is the passenger-side badge. It is derived on every read and
// never stored.
type AccountStatus string

const (
	AccountEmailPending AccountStatus = "email_pending"
	AccountIncomplete   AccountStatus = "incomplete"
	AccountValidated    AccountStatus = "validated"
)

// EvaluateAccountStatus derives the account badge from the three account
// facts. Any combination is accepted, including regressions such as a phone
// number cleared after validation.
func EvaluateAccountStatus(emailConfirmedAt *time.Time, fullName, phoneNumber string) AccountStatus {
	if emailConfirmedAt == nil {
		return AccountEmailPending
	}
	if strings.TrimSpace(fullName) == "" || strings.TrimSpace(phoneNumber) == "" {
		return AccountIncomplete
	}
	return AccountValidated
}

// DriverStatus is the operator-side badge stored on the driver profile
type DriverStatus string

const (
	DriverDraft           DriverStatus = "draft"
	DriverPendingApproval DriverStatus = "pending_approval"
	DriverActive          DriverStatus = "active"
	DriverRejected        DriverStatus = "rejected"
	DriverSuspended       DriverStatus = "suspended"

	// DriverNotApplicable is reported for accounts without a driver profile.
	// It is never stored and no event applies to it.
	DriverNotApplicable DriverStatus = "not_applicable"
)

// Valid reports whether s is one of the five stored states
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverDraft, DriverPendingApproval, DriverActive, DriverRejected, DriverSuspended:
		return true
	}
	return false
}

// DriverEvent names a requested driver status change
type DriverEvent string

const (
	// EventCreate marks the creation of a profile in history. It is not a
	// transition.
	EventCreate DriverEvent = "create"

	EventSubmit     DriverEvent = "submit"
	EventEnrollFree DriverEvent = "enroll_free"
	EventApprove    DriverEvent = "approve"
	EventReject     DriverEvent = "reject"
	EventResubmit   DriverEvent = "resubmit"
	EventSuspend    DriverEvent = "suspend"
	EventReinstate  DriverEvent = "reinstate"
)

var (
	ErrInvalidTransition = errors.New("invalid driver status transition")
	ErrReasonRequired    = errors.New("a reason is required for this transition")
	ErrNoDriverProfile   = errors.New("account has no driver profile")
)

type transitionKey struct {
	from  DriverStatus
	event DriverEvent
}

// transitions is the complete driver lifecycle. Any move not listed is invalid.
var transitions = map[transitionKey]DriverStatus{
	{DriverDraft, EventSubmit}:             DriverPendingApproval,
	{DriverDraft, EventEnrollFree}:         DriverActive,
	{DriverPendingApproval, EventApprove}:  DriverActive,
	{DriverPendingApproval, EventReject}:   DriverRejected,
	{DriverRejected, EventResubmit}:        DriverPendingApproval,
	{DriverPendingApproval, EventResubmit}: DriverPendingApproval,
	{DriverActive, EventSuspend}:           DriverSuspended,
	{DriverSuspended, EventReinstate}:      DriverActive,
}

// eventSources lists the source states per event in a stable order
var eventSources = map[DriverEvent][]DriverStatus{
	EventSubmit:     {DriverDraft},
	EventEnrollFree: {DriverDraft},
	EventApprove:    {DriverPendingApproval},
	EventReject:     {DriverPendingApproval},
	EventResubmit:   {DriverRejected, DriverPendingApproval},
	EventSuspend:    {DriverActive},
	EventReinstate:  {DriverSuspended},
}

// RequiresReason reports whether the event must carry a human-readable reason
func (e DriverEvent) RequiresReason() bool {
	return e == EventReject || e == EventSuspend
}

// Valid reports whether e is a known event
func (e DriverEvent) Valid() bool {
	_, ok := eventSources[e]
	return ok
}

// NextDriverStatus validates a transition and returns the target state
func NextDriverStatus(from DriverStatus, event DriverEvent, reason string) (DriverStatus, error) {
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, ErrInvalidTransition
	}
	if event.RequiresReason() && strings.TrimSpace(reason) == "" {
		return from, ErrReasonRequired
	}
	return to, nil
}

// ValidSources lists the states an event may be applied to. Persistence uses
// it to guard the stored row at commit time.
func ValidSources(event DriverEvent) []DriverStatus {
	sources := eventSources[event]
	out := make([]DriverStatus, len(sources))
	copy(out, sources)
	return out
}

// DriverStatusView returns the badge for an account: the stored status, or
// not_applicable when there is no driver profile.
func DriverStatusView(profile *DriverProfile) DriverStatus {
	if profile == nil {
		return DriverNotApplicable
	}
	return profile.Status
}
