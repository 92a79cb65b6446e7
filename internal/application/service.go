package application

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
	"github.com/taskboard-hq/taskboard/internal/task"
	"github.com/taskboard-hq/taskboard/internal/workflow"
)

const (
	ReasonTaskNotPublished        = "task is not published"
	ReasonStatusChangedConcurrent = "status changed concurrently"
	ReasonInvalidStatus           = "invalid status"
)

// TaskLookup reads the task an application belongs to.
type TaskLookup interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

// Service is the Application lifecycle state machine. Reviewer actions are
// scoped to the task's organization; applicant actions are gated by the
// applicant's identity alone.
type Service struct {
	store     Store
	tasks     TaskLookup
	publisher events.Publisher
	observer  workflow.Observer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithObserver(o workflow.Observer) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

func NewService(store Store, tasks TaskLookup, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		tasks:     tasks,
		publisher: events.NopPublisher{},
		observer:  workflow.NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit files the actor's application for a published task.
func (s *Service) Submit(ctx context.Context, actor *rbac.Actor, taskID, note string) (app *Application, err error) {
	defer func() { s.observe(ActionSubmit, err) }()

	if err := workflow.Denied(rbac.Check(actor, rbac.PermApplicationCreate)); err != nil {
		return nil, err
	}
	t, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.CanRead(actor, t) {
		return nil, workflow.NotFound("task")
	}
	if t.Status != task.StatusPublished {
		return nil, workflow.Conflict(workflow.ReasonInvalidState, ReasonTaskNotPublished)
	}

	active, err := s.store.ExistsActive(ctx, actor.UserID(), t.ID)
	if err != nil {
		return nil, fmt.Errorf("submitting application: %w", err)
	}
	if active {
		return nil, workflow.Conflict(workflow.ReasonDuplicateApplication, "")
	}

	app = &Application{
		TaskID:      t.ID,
		ApplicantID: actor.UserID(),
		Status:      StatusSubmitted,
		Note:        strings.TrimSpace(note),
	}
	if err := s.store.Insert(ctx, app); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, workflow.Conflict(workflow.ReasonDuplicateApplication, "")
		}
		return nil, fmt.Errorf("submitting application: %w", err)
	}

	s.emit(ctx, actor, app, t, events.ApplicationSubmitted, "")
	return app, nil
}

// Shortlist moves a submitted application onto the shortlist.
func (s *Service) Shortlist(ctx context.Context, actor *rbac.Actor, id string) (*Application, error) {
	return s.review(ctx, actor, id, rbac.ApplicationActionShortlist, ActionShortlist, events.ApplicationShortlisted)
}

// SendOffer extends an offer to a shortlisted applicant. The global admin
// may offer straight from submitted.
func (s *Service) SendOffer(ctx context.Context, actor *rbac.Actor, id string) (*Application, error) {
	edge := ActionOffer
	if rbac.BypassesPreconditions(actor) {
		edge = actionOfferDirect
	}
	return s.review(ctx, actor, id, rbac.ApplicationActionOffer, edge, events.ApplicationOfferSent)
}

// Reject closes an application that has not been resolved yet.
func (s *Service) Reject(ctx context.Context, actor *rbac.Actor, id string) (*Application, error) {
	return s.review(ctx, actor, id, rbac.ApplicationActionReject, ActionReject, events.ApplicationRejected)
}

func (s *Service) review(ctx context.Context, actor *rbac.Actor, id, reviewAction, edge, eventType string) (*Application, error) {
	metricAction := edge
	if edge == actionOfferDirect {
		metricAction = ActionOffer
	}
	return s.transition(ctx, actor, id, metricAction, edge, eventType, func(app *Application, t *task.Task) rbac.Decision {
		return rbac.CheckApplicationStatus(actor, reviewAction, t.OrganizationID)
	})
}

// ConfirmOffer accepts an offer. Only the applicant may confirm.
func (s *Service) ConfirmOffer(ctx context.Context, actor *rbac.Actor, id string) (*Application, error) {
	return s.transition(ctx, actor, id, ActionConfirm, ActionConfirm, events.ApplicationOfferAccepted,
		func(app *Application, _ *task.Task) rbac.Decision {
			return rbac.CheckOwner(actor, rbac.PermApplicationConfirm, app.ApplicantID)
		})
}

// DeclineOffer turns an offer down. Only the applicant may decline.
func (s *Service) DeclineOffer(ctx context.Context, actor *rbac.Actor, id string) (*Application, error) {
	return s.transition(ctx, actor, id, ActionDecline, ActionDecline, events.ApplicationOfferDeclined,
		func(app *Application, _ *task.Task) rbac.Decision {
			return rbac.CheckOwner(actor, rbac.PermApplicationReject, app.ApplicantID)
		})
}

// Withdraw retracts the applicant's own unresolved application. No
// permission is required beyond being the applicant.
func (s *Service) Withdraw(ctx context.Context, actor *rbac.Actor, id string) (*Application, error) {
	return s.transition(ctx, actor, id, ActionWithdraw, ActionWithdraw, events.ApplicationWithdrawn,
		func(app *Application, _ *task.Task) rbac.Decision {
			if !actor.Is(app.ApplicantID) {
				return rbac.Decision{Reason: rbac.ReasonNotOwner}
			}
			return rbac.Decision{Allowed: true}
		})
}

func (s *Service) transition(
	ctx context.Context,
	actor *rbac.Actor,
	id, action, edge, eventType string,
	guard func(*Application, *task.Task) rbac.Decision,
) (app *Application, err error) {
	defer func() { s.observe(action, err) }()

	if actor == nil {
		return nil, workflow.Forbidden(workflow.ReasonNoActor)
	}
	current, t, err := s.loadWithTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := guard(current, t); !d.Allowed {
		slog.Debug("application transition denied",
			"application_id", current.ID, "action", action, "user_id", actor.UserID(), "reason", d.Reason)
		return nil, workflow.Forbidden(d.Reason)
	}

	next, err := lifecycle.Next(edge, current.Status)
	if err != nil {
		return nil, workflow.InvalidState(action, string(current.Status))
	}

	updated, err := s.store.CompareAndSwapStatus(ctx, current.ID, current.Status, next)
	switch {
	case err == nil:
	case errors.Is(err, ErrStatusChanged):
		return nil, workflow.Conflict(workflow.ReasonInvalidState, ReasonStatusChangedConcurrent)
	case errors.Is(err, ErrNotFound):
		return nil, workflow.NotFound("application")
	default:
		return nil, fmt.Errorf("%s application: %w", action, err)
	}

	s.emit(ctx, actor, updated, t, eventType, current.Status)
	return updated, nil
}

// Get returns an application visible to the actor: the applicant, the
// task's creator, and application readers of the task's organization.
func (s *Service) Get(ctx context.Context, actor *rbac.Actor, id string) (*Application, error) {
	if actor == nil {
		return nil, workflow.Forbidden(workflow.ReasonNoActor)
	}
	app, t, err := s.loadWithTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Is(app.ApplicantID) && !canReviewApplicants(actor, t) {
		return nil, workflow.NotFound("application")
	}
	return app, nil
}

// ListForTask returns the applications filed against a task.
func (s *Service) ListForTask(ctx context.Context, actor *rbac.Actor, taskID string, status Status) ([]Application, error) {
	if actor == nil {
		return nil, workflow.Forbidden(workflow.ReasonNoActor)
	}
	if status != "" && !status.Valid() {
		return nil, workflow.Validation(ReasonInvalidStatus)
	}
	t, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanViewApplicants(actor, t.CreatedBy) {
		return nil, workflow.Forbidden(workflow.ReasonMissingPermission)
	}
	if !canReviewApplicants(actor, t) {
		return nil, workflow.Forbidden(workflow.ReasonOrganizationMismatch)
	}

	f := Filter{TaskID: t.ID}
	if status != "" {
		f.Statuses = []Status{status}
	}
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	if list == nil {
		list = []Application{}
	}
	return list, nil
}

// ListMine returns the actor's own applications.
func (s *Service) ListMine(ctx context.Context, actor *rbac.Actor, status Status) ([]Application, error) {
	if actor == nil {
		return nil, workflow.Forbidden(workflow.ReasonNoActor)
	}
	if status != "" && !status.Valid() {
		return nil, workflow.Validation(ReasonInvalidStatus)
	}
	f := Filter{ApplicantID: actor.UserID()}
	if status != "" {
		f.Statuses = []Status{status}
	}
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	if list == nil {
		list = []Application{}
	}
	return list, nil
}

// canReviewApplicants: the task's creator, or an application reader inside
// the task's organization.
func canReviewApplicants(actor *rbac.Actor, t *task.Task) bool {
	return actor.Is(t.CreatedBy) ||
		rbac.CanWithContext(actor, rbac.PermApplicationRead, rbac.ResourceContext{OrganizationID: t.OrganizationID})
}

func (s *Service) loadWithTask(ctx context.Context, id string) (*Application, *task.Task, error) {
	id = ids.Normalize(id)
	if id == "" {
		return nil, nil, workflow.NotFound("application")
	}
	app, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, workflow.NotFound("application")
		}
		return nil, nil, fmt.Errorf("loading application: %w", err)
	}
	t, err := s.loadTask(ctx, app.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return app, t, nil
}

func (s *Service) loadTask(ctx context.Context, id string) (*task.Task, error) {
	id = ids.Normalize(id)
	if id == "" {
		return nil, workflow.NotFound("task")
	}
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return nil, workflow.NotFound("task")
		}
		return nil, fmt.Errorf("loading task: %w", err)
	}
	return t, nil
}

func (s *Service) observe(action string, err error) {
	s.observer.ObserveTransition(events.ResourceApplication, action, workflow.Outcome(err))
}

func (s *Service) emit(ctx context.Context, actor *rbac.Actor, app *Application, t *task.Task, eventType string, from Status) {
	meta := map[string]any{
		events.MetadataToStatus:  string(app.Status),
		events.MetadataTaskID:    app.TaskID,
		events.MetadataApplicant: app.ApplicantID,
	}
	if from != "" {
		meta[events.MetadataFromStatus] = string(from)
	}
	s.publisher.Publish(ctx, events.Event{
		Type:           eventType,
		ResourceType:   events.ResourceApplication,
		ResourceID:     app.ID,
		ActorID:        actor.UserID(),
		OrganizationID: t.OrganizationID,
		Metadata:       meta,
		OccurredAt:     time.Now().UTC(),
	})
}
