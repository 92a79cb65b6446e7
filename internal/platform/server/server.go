package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/taskboard-hq/taskboard/internal/application"
	"github.com/taskboard-hq/taskboard/internal/auth"
	"github.com/taskboard-hq/taskboard/internal/events"
	"github.com/taskboard-hq/taskboard/internal/organization"
	"github.com/taskboard-hq/taskboard/internal/platform/middleware"
	"github.com/taskboard-hq/taskboard/internal/platform/telemetry"
	"github.com/taskboard-hq/taskboard/internal/rbac"
	"github.com/taskboard-hq/taskboard/internal/task"
)

// Pinger reports database reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	DB                  Pinger
	Auth                *auth.TokenService
	AuthHandler         *auth.Handler
	Catalog             *rbac.Catalog
	RBACHandler         *rbac.Handler
	TaskHandler         *task.Handler
	ApplicationHandler  *application.Handler
	OrganizationHandler *organization.Handler
	EventHandler        *events.Handler
	EventHub            *events.Hub
	Metrics             *telemetry.Metrics
	DevMode             bool
	DevIdentity         *auth.Identity
	Logger              *slog.Logger
	CORSAllowedOrigins  []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	db           Pinger
	handler      http.Handler
	rbacOpts     []rbac.MiddlewareOption
}

func New(addr string, deps Dependencies) *Server {
	// Protected routes mux, wrapped with auth and actor resolution
	protectedMux := http.NewServeMux()

	var protectedHandler http.Handler = deps.Metrics.Instrument(protectedMux)
	if deps.Catalog != nil {
		protectedHandler = rbac.ResolveActor(deps.Catalog)(protectedHandler)
	}
	if deps.Auth != nil {
		var authOpts []auth.MiddlewareOption
		if deps.DevMode && deps.DevIdentity != nil {
			authOpts = append(authOpts, auth.WithDevIdentity(deps.DevIdentity))
		}
		protectedHandler = auth.Middleware(deps.Auth, authOpts...)(protectedHandler)
	}

	// Top-level mux: public routes + protected catch-all
	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		db:           deps.DB,
	}
	if deps.Metrics != nil {
		s.rbacOpts = append(s.rbacOpts, rbac.WithDenialRecorder(deps.Metrics))
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Metrics != nil {
		topMux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	// Dev-only login route (no auth required)
	if deps.DevMode && deps.AuthHandler != nil {
		deps.AuthHandler.RegisterDevRoutes(topMux)
	}
	// The event feed authenticates the upgrade itself: browsers cannot send
	// an Authorization header on websocket requests.
	if deps.EventHub != nil {
		topMux.HandleFunc("GET /api/v1/events/ws", deps.EventHub.HandleWebSocket)
	}

	if deps.Catalog != nil {
		protectedMux.HandleFunc("GET /api/v1/me", rbac.HandleMe)
	}

	// Task lifecycle. Permission and organization guards live in the
	// service, which needs the loaded task to evaluate them.
	if h := deps.TaskHandler; h != nil {
		protectedMux.HandleFunc("POST /api/v1/tasks", h.HandleCreate)
		protectedMux.HandleFunc("GET /api/v1/tasks", h.HandleList)
		protectedMux.HandleFunc("GET /api/v1/tasks/{id}", h.HandleGet)
		protectedMux.HandleFunc("POST /api/v1/tasks/{id}/{action}", h.HandleTransition)
	}

	// Application lifecycle
	if h := deps.ApplicationHandler; h != nil {
		protectedMux.HandleFunc("POST /api/v1/tasks/{id}/applications", h.HandleSubmit)
		protectedMux.HandleFunc("GET /api/v1/tasks/{id}/applications", h.HandleListForTask)
		protectedMux.HandleFunc("GET /api/v1/applications", h.HandleListMine)
		protectedMux.HandleFunc("GET /api/v1/applications/{id}", h.HandleGet)
		protectedMux.HandleFunc("POST /api/v1/applications/{id}/{action}", h.HandleTransition)
	}

	// Role and permission administration
	if h := deps.RBACHandler; h != nil {
		s.protect("GET /api/v1/roles", rbac.PermRoleManage, h.HandleListRoles)
		s.protect("POST /api/v1/roles", rbac.PermRoleManage, h.HandleCreateRole)
		s.protect("PUT /api/v1/roles/{code}", rbac.PermRoleManage, h.HandleUpdateRole)
		s.protect("DELETE /api/v1/roles/{code}", rbac.PermRoleManage, h.HandleDeleteRole)
		s.protect("GET /api/v1/permissions", rbac.PermPermissionManage, h.HandleListPermissions)
		s.protect("POST /api/v1/permissions", rbac.PermPermissionManage, h.HandleCreatePermission)
		s.protect("DELETE /api/v1/permissions/{code}", rbac.PermPermissionManage, h.HandleDeletePermission)
	}

	// Organizations
	if h := deps.OrganizationHandler; h != nil {
		s.protect("POST /api/v1/organizations", rbac.PermOrganizationManage, h.HandleCreate)
		protectedMux.HandleFunc("GET /api/v1/organizations", h.HandleList)
		protectedMux.HandleFunc("GET /api/v1/organizations/{id}", h.HandleGet)
	}

	// Event history
	if h := deps.EventHandler; h != nil {
		s.protect("GET /api/v1/events", rbac.PermDashboardView, h.HandleList)
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	// Wrap top-level mux with observability middleware
	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

func (s *Server) protect(pattern, permission string, h http.HandlerFunc) {
	s.protectedMux.Handle(pattern, rbac.RequirePermission(permission, s.rbacOpts...)(h))
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
// Use this to register routes that require authentication.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports ready without a database: the in-memory stores
// are then authoritative.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "storage": "memory"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "storage": "postgres"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
