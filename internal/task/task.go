// Package task implements the Task lifecycle: creation, review, publication,
// closing and archival, each transition guarded by the permission evaluator.
package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taskboard-hq/taskboard/internal/workflow"
)

// Status is a Task lifecycle state:
// [draft] → [pending] → [published | changes_requested] → [closed] → [archived]
type Status string

const (
	StatusDraft            Status = "draft"
	StatusPending          Status = "pending"
	StatusPublished        Status = "published"
	StatusChangesRequested Status = "changes_requested"
	StatusClosed           Status = "closed"
	StatusArchived         Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPublished, StatusChangesRequested, StatusClosed, StatusArchived:
		return true
	}
	return false
}

// Visibility controls who can read a published task.
type Visibility string

const (
	VisibilityInternal Visibility = "internal"
	VisibilityExternal Visibility = "external"
	VisibilityGlobal   Visibility = "global"
)

// ParseVisibility accepts any casing; blank yields "".
func ParseVisibility(s string) (Visibility, bool) {
	v := Visibility(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "", VisibilityInternal, VisibilityExternal, VisibilityGlobal:
		return v, true
	}
	return "", false
}

// Transition actions.
const (
	ActionCreate   = "create"
	ActionSubmit   = "submit"
	ActionApprove  = "approve"
	ActionDecline  = "decline"
	ActionResubmit = "resubmit"
	ActionClose    = "close"
	ActionArchive  = "archive"
)

var lifecycle = workflow.NewMachine(
	workflow.Transition[Status]{Action: ActionSubmit, From: []Status{StatusDraft}, To: StatusPending},
	workflow.Transition[Status]{Action: ActionApprove, From: []Status{StatusPending}, To: StatusPublished},
	workflow.Transition[Status]{Action: ActionDecline, From: []Status{StatusPending}, To: StatusChangesRequested},
	workflow.Transition[Status]{Action: ActionResubmit, From: []Status{StatusChangesRequested}, To: StatusPending},
	workflow.Transition[Status]{Action: ActionClose, From: []Status{StatusPublished, StatusChangesRequested}, To: StatusClosed},
	workflow.Transition[Status]{
		Action: ActionArchive,
		From:   []Status{StatusDraft, StatusPending, StatusPublished, StatusChangesRequested, StatusClosed},
		To:     StatusArchived,
	},
)

// CanTransition reports whether action is legal from s, ignoring guards.
func CanTransition(action string, s Status) bool {
	return lifecycle.Can(action, s)
}

// Task is a unit of work published to applicants once reviewed.
type Task struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organization_id,omitempty"`
	CreatedBy       string     `json:"created_by"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Status          Status     `json:"status"`
	Visibility      Visibility `json:"visibility"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Store sentinels.
var (
	ErrNotFound      = errors.New("task not found")
	ErrStatusChanged = errors.New("task status changed concurrently")
)

// StatusUpdate is a compare-and-swap on a task's status. RejectionReason,
// when non-nil, is written in the same statement.
type StatusUpdate struct {
	From            Status
	To              Status
	RejectionReason *string
}

// Filter narrows a task listing. Zero fields match everything.
type Filter struct {
	Statuses       []Status
	OrganizationID string
	CreatedBy      string
	Limit          int
}

// Store is the persistence contract of the task lifecycle. Implementations
// must apply CompareAndSwapStatus atomically: it fails with ErrStatusChanged
// when the stored status is not update.From.
type Store interface {
	Insert(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	CompareAndSwapStatus(ctx context.Context, id string, update StatusUpdate) (*Task, error)
	List(ctx context.Context, f Filter) ([]Task, error)
}
