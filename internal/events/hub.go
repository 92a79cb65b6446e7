package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/taskboard-hq/taskboard/internal/auth"
	"github.com/taskboard-hq/taskboard/internal/rbac"
)

// TokenValidator validates a raw access token.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Identity, error)
}

// ActorResolver turns an identity into an actor snapshot.
type ActorResolver interface {
	ResolveActor(identity *auth.Identity) *rbac.Actor
}

const subscriberBuffer = 64

type subscriber struct {
	actor *rbac.Actor
	ch    chan Event
}

// Hub broadcasts events to websocket subscribers. A subscriber only sees
// events it may view: events of its own organization when it holds
// dashboard:view, and events it caused itself.
type Hub struct {
	tokens   TokenValidator
	actors   ActorResolver
	origins  []string
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	closed   bool
	writeTTL time.Duration
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithOriginPatterns restricts websocket upgrades to the given origins.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) {
		h.origins = patterns
	}
}

func NewHub(tokens TokenValidator, actors ActorResolver, opts ...HubOption) *Hub {
	h := &Hub{
		tokens:   tokens,
		actors:   actors,
		subs:     make(map[*subscriber]struct{}),
		writeTTL: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func canSee(a *rbac.Actor, e Event) bool {
	if a.Is(e.ActorID) {
		return true
	}
	return rbac.CanWithContext(a, rbac.PermDashboardView, rbac.ResourceContext{OrganizationID: e.OrganizationID})
}

// Publish delivers event to every subscriber allowed to see it. Slow
// subscribers lose events rather than stall the publisher.
func (h *Hub) Publish(_ context.Context, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !canSee(s.actor, event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			slog.Warn("event subscriber lagging, dropping event", "user_id", s.actor.UserID(), "type", event.Type)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
	return nil
}

func (h *Hub) subscribe(actor *rbac.Actor) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	s := &subscriber{actor: actor, ch: make(chan Event, subscriberBuffer)}
	h.subs[s] = struct{}{}
	return s, true
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// HandleWebSocket streams events to the caller. Browsers cannot set headers
// on the upgrade request, so the access token may come from the
// access_token query parameter instead of the Authorization header.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	if actor == nil {
		raw := r.URL.Query().Get("access_token")
		if raw == "" || h.tokens == nil {
			http.Error(w, `{"error":"missing access_token"}`, http.StatusUnauthorized)
			return
		}
		identity, err := h.tokens.ValidateToken(raw)
		if err != nil || identity.TokenType != "access" {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		actor = h.actors.ResolveActor(identity)
	}

	if !rbac.CanViewDashboard(actor) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}

	acceptOpts := &websocket.AcceptOptions{}
	if len(h.origins) > 0 {
		acceptOpts.OriginPatterns = h.origins
	}
	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	sub, ok := h.subscribe(actor)
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unsubscribe(sub)

	// Subscribers never send; CloseRead handles pings and peer close.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case e, open := <-sub.ch:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTTL)
			err := wsjson.Write(writeCtx, conn, e)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
