// Package events carries workflow notifications out of the engine. Publishing
// is fire-and-forget: a slow or failing sink never blocks a transition.
package events

import (
	"context"
	"sync"
	"time"
)

// Event is a notification about a successful transition.
type Event struct {
	ID             int64          `json:"id,omitempty"`
	Type           string         `json:"type"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	ActorID        string         `json:"actor_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

const (
	ResourceTask        = "task"
	ResourceApplication = "application"
)

const (
	TaskCreated          = "task.created"
	TaskSubmitted        = "task.submitted"
	TaskPublished        = "task.published"
	TaskChangesRequested = "task.changes_requested"
	TaskClosed           = "task.closed"
	TaskArchived         = "task.archived"

	ApplicationSubmitted     = "application.submitted"
	ApplicationShortlisted   = "application.shortlisted"
	ApplicationOfferSent     = "application.offer_sent"
	ApplicationRejected      = "application.rejected"
	ApplicationOfferAccepted = "application.offer_accepted"
	ApplicationOfferDeclined = "application.offer_declined"
	ApplicationWithdrawn     = "application.withdrawn"
)

// Metadata keys.
const (
	MetadataFromStatus = "from"
	MetadataToStatus   = "to"
	MetadataReason     = "reason"
	MetadataTaskID     = "task_id"
	MetadataApplicant  = "applicant_id"
)

// Publisher receives events. Publish is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close() error                   { return nil }

// Fanout publishes every event to each of its publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, p := range f {
		p.Publish(ctx, event)
	}
}

// Close closes every publisher and returns the first error.
func (f Fanout) Close() error {
	var first error
	for _, p := range f {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps published events in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of every published event, in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
