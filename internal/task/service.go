package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskboard-hq/taskboard/internal/events"
	"github.com/taskboard-hq/taskboard/internal/ids"
	"github.com/taskboard-hq/taskboard/internal/rbac"
	"github.com/taskboard-hq/taskboard/internal/workflow"
)

// Validation reasons specific to tasks.
const (
	ReasonTitleRequired           = "title is required"
	ReasonInvalidVisibility       = "invalid visibility"
	ReasonInternalNeedsOrg        = "internal tasks require an organization"
	ReasonInvalidStatus           = "invalid status"
	ReasonStatusChangedConcurrent = "status changed concurrently"
)

// Service is the Task lifecycle state machine. Every transition checks
// permission and guard before touching the store, and applies the status
// change as a single compare-and-swap.
type Service struct {
	store     Store
	publisher events.Publisher
	observer  workflow.Observer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sends transition events to p.
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithObserver reports every transition outcome to o.
func WithObserver(o workflow.Observer) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		publisher: events.NopPublisher{},
		observer:  workflow.NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is the caller-supplied part of a new task.
type CreateInput struct {
	Title       string
	Description string
	Visibility  string
}

// Create stores a new Draft task owned by the actor and the actor's
// organization. Visibility defaults to internal for organization members
// and global for independent creators.
func (s *Service) Create(ctx context.Context, actor *rbac.Actor, in CreateInput) (t *Task, err error) {
	defer func() { s.observe(ActionCreate, err) }()

	if err := workflow.Denied(rbac.Check(actor, rbac.PermTaskCreate)); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, workflow.Validation(ReasonTitleRequired)
	}
	vis, ok := ParseVisibility(in.Visibility)
	if !ok {
		return nil, workflow.Validation(ReasonInvalidVisibility)
	}
	orgID := actor.OrganizationID()
	if vis == "" {
		vis = VisibilityGlobal
		if orgID != "" {
			vis = VisibilityInternal
		}
	}
	if vis == VisibilityInternal && orgID == "" {
		return nil, workflow.Validation(ReasonInternalNeedsOrg)
	}

	t = &Task{
		OrganizationID: orgID,
		CreatedBy:      actor.UserID(),
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Status:         StatusDraft,
		Visibility:     vis,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.emit(ctx, actor, t, events.TaskCreated, "", nil)
	return t, nil
}

// Get returns a task the actor may read. Tasks the actor may not see are
// reported as not found.
func (s *Service) Get(ctx context.Context, actor *rbac.Actor, id string) (*Task, error) {
	if actor == nil {
		return nil, workflow.Forbidden(workflow.ReasonNoActor)
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanRead(actor, t) {
		return nil, workflow.NotFound("task")
	}
	return t, nil
}

// ListOptions narrows Service.List.
type ListOptions struct {
	Status Status
	Mine   bool
	Limit  int
}

// List returns the tasks visible to the actor. Without a status filter only
// published tasks are listed, except for Mine which lists every status.
func (s *Service) List(ctx context.Context, actor *rbac.Actor, opts ListOptions) ([]Task, error) {
	if err := workflow.Denied(rbac.Check(actor, rbac.PermTaskRead)); err != nil {
		return nil, err
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, workflow.Validation(ReasonInvalidStatus)
	}

	f := Filter{Limit: opts.Limit}
	if opts.Status != "" {
		f.Statuses = []Status{opts.Status}
	} else if !opts.Mine {
		f.Statuses = []Status{StatusPublished}
	}
	if opts.Mine {
		f.CreatedBy = actor.UserID()
	}

	all, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	out := make([]Task, 0, len(all))
	for i := range all {
		if CanRead(actor, &all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// CanRead applies the read rules: creators always see their own tasks and
// the global admin sees everything. Tasks still under review are otherwise
// visible only to reviewers of the task's organization. Published and
// closed tasks follow their visibility: internal ones stay inside the
// organization, external and global ones are open to any reader.
func CanRead(actor *rbac.Actor, t *Task) bool {
	if actor == nil || t == nil {
		return false
	}
	if actor.Is(t.CreatedBy) || rbac.IsUnscoped(actor) {
		return true
	}
	scope := rbac.ResourceContext{OrganizationID: t.OrganizationID, OwnerID: t.CreatedBy}
	switch t.Status {
	case StatusPublished, StatusClosed:
	default:
		return rbac.CanWithContext(actor, rbac.PermTaskApprove, scope)
	}
	if t.Visibility == VisibilityInternal {
		return rbac.CanWithContext(actor, rbac.PermTaskRead, scope)
	}
	return rbac.HasPermission(actor, rbac.PermTaskRead)
}

// Submit sends the creator's draft for review. Holders of task:auto_publish
// inside the task's organization skip the review.
func (s *Service) Submit(ctx context.Context, actor *rbac.Actor, id string) (*Task, error) {
	return s.submit(ctx, actor, id, ActionSubmit)
}

// Resubmit sends a task back for review after changes were requested.
func (s *Service) Resubmit(ctx context.Context, actor *rbac.Actor, id string) (*Task, error) {
	return s.submit(ctx, actor, id, ActionResubmit)
}

func (s *Service) submit(ctx context.Context, actor *rbac.Actor, id, action string) (*Task, error) {
	t, from, err := s.transition(ctx, actor, id, action, nil, func(t *Task) rbac.Decision {
		return rbac.CheckOwner(actor, rbac.PermTaskSubmit, t.CreatedBy)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, t, events.TaskSubmitted, from, nil)

	if !rbac.CanWithContext(actor, rbac.PermTaskAutoPublish, rbac.ResourceContext{OrganizationID: t.OrganizationID}) {
		return t, nil
	}
	published, err := s.apply(ctx, t, ActionApprove, nil)
	s.observe(ActionApprove, err)
	if err != nil {
		// The submission stands; a reviewer can still approve it.
		slog.Warn("auto-publish failed", "task_id", t.ID, "error", err)
		return t, nil
	}
	s.emit(ctx, actor, published, events.TaskPublished, StatusPending, map[string]any{"auto": true})
	return published, nil
}

// Approve publishes a pending task.
func (s *Service) Approve(ctx context.Context, actor *rbac.Actor, id string) (*Task, error) {
	t, from, err := s.transition(ctx, actor, id, ActionApprove, nil, reviewerGuard(actor))
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, t, events.TaskPublished, from, nil)
	return t, nil
}

// Decline returns a pending task to its creator with a reason. A blank
// reason is rejected before anything else is checked.
func (s *Service) Decline(ctx context.Context, actor *rbac.Actor, id, reason string) (*Task, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		err := workflow.Validation(workflow.ReasonReasonRequired)
		s.observe(ActionDecline, err)
		return nil, err
	}
	t, from, err := s.transition(ctx, actor, id, ActionDecline, &reason, reviewerGuard(actor))
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, t, events.TaskChangesRequested, from, map[string]any{events.MetadataReason: reason})
	return t, nil
}

// Close ends a published task, or abandons one that has changes requested.
// Reviewers of the task's organization and the creator holding task:update
// may close.
func (s *Service) Close(ctx context.Context, actor *rbac.Actor, id string) (*Task, error) {
	t, from, err := s.transition(ctx, actor, id, ActionClose, nil, func(t *Task) rbac.Decision {
		rc := rbac.ResourceContext{OrganizationID: t.OrganizationID, OwnerID: t.CreatedBy}
		reviewer := rbac.CheckWithContext(actor, rbac.PermTaskApprove, rc)
		if reviewer.Allowed || !actor.Is(t.CreatedBy) {
			return reviewer
		}
		return rbac.CheckOwnerWithContext(actor, rbac.PermTaskUpdate, rc)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, t, events.TaskClosed, from, nil)
	return t, nil
}

// Archive retires a task from any state but archived. It is an
// administrative override: task:delete or the global admin, no
// organization guard.
func (s *Service) Archive(ctx context.Context, actor *rbac.Actor, id string) (*Task, error) {
	t, from, err := s.transition(ctx, actor, id, ActionArchive, nil, func(t *Task) rbac.Decision {
		return rbac.CheckOverride(actor, rbac.PermTaskDelete)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, t, events.TaskArchived, from, nil)
	return t, nil
}

func reviewerGuard(actor *rbac.Actor) func(*Task) rbac.Decision {
	return func(t *Task) rbac.Decision {
		return rbac.CheckWithContext(actor, rbac.PermTaskApprove, rbac.ResourceContext{
			OrganizationID: t.OrganizationID,
			OwnerID:        t.CreatedBy,
		})
	}
}

// transition runs the common path: load, guard, state check, CAS. It
// returns the updated task and the status it left.
func (s *Service) transition(
	ctx context.Context,
	actor *rbac.Actor,
	id, action string,
	reason *string,
	guard func(*Task) rbac.Decision,
) (t *Task, from Status, err error) {
	defer func() { s.observe(action, err) }()

	if actor == nil {
		return nil, "", workflow.Forbidden(workflow.ReasonNoActor)
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if d := guard(current); !d.Allowed {
		slog.Debug("task transition denied",
			"task_id", current.ID, "action", action, "user_id", actor.UserID(), "reason", d.Reason)
		return nil, "", workflow.Forbidden(d.Reason)
	}
	t, err = s.apply(ctx, current, action, reason)
	if err != nil {
		return nil, "", err
	}
	return t, current.Status, nil
}

func (s *Service) apply(ctx context.Context, current *Task, action string, reason *string) (*Task, error) {
	next, err := lifecycle.Next(action, current.Status)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.CompareAndSwapStatus(ctx, current.ID, StatusUpdate{
		From:            current.Status,
		To:              next,
		RejectionReason: reason,
	})
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, ErrStatusChanged):
		return nil, workflow.Conflict(workflow.ReasonInvalidState, ReasonStatusChangedConcurrent)
	case errors.Is(err, ErrNotFound):
		return nil, workflow.NotFound("task")
	default:
		return nil, fmt.Errorf("%s task: %w", action, err)
	}
}

func (s *Service) load(ctx context.Context, id string) (*Task, error) {
	id = ids.Normalize(id)
	if id == "" {
		return nil, workflow.NotFound("task")
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, workflow.NotFound("task")
		}
		return nil, fmt.Errorf("loading task: %w", err)
	}
	return t, nil
}

func (s *Service) observe(action string, err error) {
	s.observer.ObserveTransition(events.ResourceTask, action, workflow.Outcome(err))
}

func (s *Service) emit(ctx context.Context, actor *rbac.Actor, t *Task, eventType string, from Status, extra map[string]any) {
	meta := map[string]any{events.MetadataToStatus: string(t.Status)}
	if from != "" {
		meta[events.MetadataFromStatus] = string(from)
	}
	for k, v := range extra {
		meta[k] = v
	}
	s.publisher.Publish(ctx, events.Event{
		Type:           eventType,
		ResourceType:   events.ResourceTask,
		ResourceID:     t.ID,
		ActorID:        actor.UserID(),
		OrganizationID: t.OrganizationID,
		Metadata:       meta,
		OccurredAt:     time.Now().UTC(),
	})
}
