package rbac

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/taskboard-hq/taskboard/internal/auth"
)

type actorContextKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor resolved for the request, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorContextKey{}).(*Actor)
	return a
}

// DenialRecorder observes authorization denials.
type DenialRecorder interface {
	ObserveDenial(permission, reason string)
}

// MiddlewareOption configures RBAC middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	recorder DenialRecorder
}

// WithDenialRecorder reports every denial to rec.
func WithDenialRecorder(rec DenialRecorder) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.recorder = rec
	}
}

// ResolveActor returns middleware that resolves the authenticated identity
// into an actor snapshot once per request.
func ResolveActor(catalog *Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}
			actor := catalog.ResolveActor(identity)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequirePermission returns middleware that checks if the resolved actor
// has the specified permission.
func RequirePermission(permission string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var mc middlewareConfig
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
				return
			}

			decision := Check(actor, permission)
			if !decision.Allowed {
				slog.Debug("permission denied",
					"user_id", actor.UserID(),
					"permission", permission,
					"reason", decision.Reason,
				)
				if mc.recorder != nil {
					mc.recorder.ObserveDenial(permission, decision.Reason)
				}
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":  "forbidden",
					"reason": decision.Reason,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
