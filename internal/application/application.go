// Package application implements the Application lifecycle: an applicant's
// submission against a published task, reviewer progression through
// shortlist and offer, and the applicant's own response.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/taskboard-hq/taskboard/internal/workflow"
)

// Status is an Application lifecycle state.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusShortlisted   Status = "shortlisted"
	StatusOfferSent     Status = "offer_sent"
	StatusOfferAccepted Status = "offer_accepted"
	StatusOfferDeclined Status = "offer_declined"
	StatusRejected      Status = "rejected"
	StatusWithdrawn     Status = "withdrawn"
)

// IsTerminal reports whether no further transition leaves s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusOfferAccepted, StatusOfferDeclined, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusShortlisted, StatusOfferSent,
		StatusOfferAccepted, StatusOfferDeclined, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Transition actions.
const (
	ActionSubmit    = "submit"
	ActionShortlist = "shortlist"
	ActionOffer     = "offer"
	ActionReject    = "reject"
	ActionConfirm   = "confirm"
	ActionDecline   = "decline"
	ActionWithdraw  = "withdraw"

	// actionOfferDirect is the offer edge for actors allowed to skip the
	// shortlist.
	actionOfferDirect = "offer_direct"
)

var openStatuses = []Status{StatusSubmitted, StatusShortlisted, StatusOfferSent}

var lifecycle = workflow.NewMachine(
	workflow.Transition[Status]{Action: ActionShortlist, From: []Status{StatusSubmitted}, To: StatusShortlisted},
	workflow.Transition[Status]{Action: ActionOffer, From: []Status{StatusShortlisted}, To: StatusOfferSent},
	workflow.Transition[Status]{Action: actionOfferDirect, From: []Status{StatusSubmitted, StatusShortlisted}, To: StatusOfferSent},
	workflow.Transition[Status]{Action: ActionReject, From: openStatuses, To: StatusRejected},
	workflow.Transition[Status]{Action: ActionConfirm, From: []Status{StatusOfferSent}, To: StatusOfferAccepted},
	workflow.Transition[Status]{Action: ActionDecline, From: []Status{StatusOfferSent}, To: StatusOfferDeclined},
	workflow.Transition[Status]{Action: ActionWithdraw, From: openStatuses, To: StatusWithdrawn},
)

// CanTransition reports whether action is legal from s, ignoring guards.
func CanTransition(action string, s Status) bool {
	return lifecycle.Can(action, s)
}

// Application is an applicant's bid for a task.
type Application struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	ApplicantID string    `json:"applicant_id"`
	Status      Status    `json:"status"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store sentinels.
var (
	ErrNotFound      = errors.New("application not found")
	ErrStatusChanged = errors.New("application status changed concurrently")
	ErrDuplicate     = errors.New("applicant already has an active application for this task")
)

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	TaskID      string
	ApplicantID string
	Statuses    []Status
	Limit       int
}

// Store is the persistence contract of the application lifecycle. Insert
// must fail with ErrDuplicate while the applicant holds a non-withdrawn
// application for the same task; CompareAndSwapStatus fails with
// ErrStatusChanged when the stored status is not from.
type Store interface {
	Insert(ctx context.Context, a *Application) error
	Get(ctx context.Context, id string) (*Application, error)
	ExistsActive(ctx context.Context, applicantID, taskID string) (bool, error)
	CompareAndSwapStatus(ctx context.Context, id string, from, to Status) (*Application, error)
	List(ctx context.Context, f Filter) ([]Application, error)
}
