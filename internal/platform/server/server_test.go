package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-hq/taskboard/internal/application"
	"github.com/taskboard-hq/taskboard/internal/auth"
	"github.com/taskboard-hq/taskboard/internal/events"
	"github.com/taskboard-hq/taskboard/internal/organization"
	"github.com/taskboard-hq/taskboard/internal/platform/server"
	"github.com/taskboard-hq/taskboard/internal/platform/telemetry"
	"github.com/taskboard-hq/taskboard/internal/rbac"
	"github.com/taskboard-hq/taskboard/internal/task"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type nopLister struct{}

func (nopLister) List(context.Context, events.ListParams) ([]events.Event, error) {
	return []events.Event{}, nil
}

func TestServer_HealthCheck(t *testing.T) {
	srv := server.New(":0", server.Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name string
		db   server.Pinger
		want int
	}{
		{"memory storage", nil, http.StatusOK},
		{"database up", fakePinger{}, http.StatusOK},
		{"database down", fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := server.New(":0", server.Dependencies{DB: tt.db})
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestServer_NotFound(t *testing.T) {
	srv := server.New(":0", server.Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	srv := server.New("127.0.0.1:0", server.Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Give server time to start, then cancel
	cancel()

	err := <-errCh
	assert.NoError(t, err)
}

type testEnv struct {
	srv     *server.Server
	tokens  *auth.TokenService
	metrics *telemetry.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens := auth.NewTokenService("test-signing-key-must-be-32-chars!!", "taskboard", 24, 168)
	roles := rbac.NewMemoryRoleStore()
	catalog := rbac.NewCatalog(rbac.WithRoleLoader(roles))
	metrics := telemetry.NewMetrics()

	tasks := task.NewMemoryStore()
	taskSvc := task.NewService(tasks, task.WithObserver(metrics))
	appSvc := application.NewService(application.NewMemoryStore(), tasks, application.WithObserver(metrics))

	srv := server.New(":0", server.Dependencies{
		Auth:                tokens,
		Catalog:             catalog,
		RBACHandler:         rbac.NewHandler(catalog, roles, rbac.NewMemoryPermissionStore(roles), catalog),
		TaskHandler:         task.NewHandler(taskSvc),
		ApplicationHandler:  application.NewHandler(appSvc),
		OrganizationHandler: organization.NewHandler(organization.NewMemoryStore()),
		EventHandler:        events.NewHandler(nopLister{}),
		EventHub:            events.NewHub(tokens, catalog),
		Metrics:             metrics,
	})
	return &testEnv{srv: srv, tokens: tokens, metrics: metrics}
}

func (e *testEnv) token(t *testing.T, userID, orgID string, roles ...string) string {
	t.Helper()
	tok, err := e.tokens.CreateAccessToken(&auth.Identity{UserID: userID, OrganizationID: orgID, Roles: roles})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_TaskToOfferFlow(t *testing.T) {
	env := newTestEnv(t)
	creator := env.token(t, "creator", "org-1", rbac.RoleTaskCreator)
	reviewer := env.token(t, "rev", "org-1", rbac.RoleReviewer)
	outsider := env.token(t, "rev-2", "org-2", rbac.RoleReviewer)
	applicant := env.token(t, "alice", "", rbac.RoleApplicant)

	w := env.do(t, creator, http.MethodPost, "/api/v1/tasks", `{"title":"Paint fence","visibility":"external"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var tk task.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tk))

	require.Equal(t, http.StatusOK, env.do(t, creator, http.MethodPost, "/api/v1/tasks/"+tk.ID+"/submit", "").Code)

	w = env.do(t, outsider, http.MethodPost, "/api/v1/tasks/"+tk.ID+"/approve", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.Equal(t, http.StatusOK, env.do(t, reviewer, http.MethodPost, "/api/v1/tasks/"+tk.ID+"/approve", "").Code)

	w = env.do(t, applicant, http.MethodPost, "/api/v1/tasks/"+tk.ID+"/applications", `{}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var app application.Application
	require.NoError(t, json.NewDecoder(w.Body).Decode(&app))

	require.Equal(t, http.StatusOK, env.do(t, reviewer, http.MethodPost, "/api/v1/applications/"+app.ID+"/shortlist", "").Code)
	require.Equal(t, http.StatusOK, env.do(t, reviewer, http.MethodPost, "/api/v1/applications/"+app.ID+"/offer", "").Code)

	w = env.do(t, applicant, http.MethodPost, "/api/v1/applications/"+app.ID+"/confirm", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&app))
	assert.Equal(t, application.StatusOfferAccepted, app.Status)

	w = env.do(t, "", http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `taskboard_transitions_total{action="approve",outcome="forbidden",resource="task"} 1`)
	assert.Contains(t, w.Body.String(), `taskboard_transitions_total{action="confirm",outcome="ok",resource="application"} 1`)
}

func TestServer_Authentication(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, "", http.MethodGet, "/api/v1/tasks", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, "garbage", http.MethodGet, "/api/v1/tasks", "").Code)

	refresh, err := env.tokens.CreateRefreshToken(&auth.Identity{UserID: "u", Roles: []string{rbac.RoleApplicant}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, refresh, http.MethodGet, "/api/v1/tasks", "").Code)

	w := env.do(t, env.token(t, "alice", "", rbac.RoleApplicant), http.MethodGet, "/api/v1/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&me))
	assert.Equal(t, true, me["canApplyForTasks"])
}

func TestServer_AdministrationRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "admin", "", rbac.RoleGlobalAdmin)
	reviewer := env.token(t, "rev", "org-1", rbac.RoleReviewer)

	w := env.do(t, reviewer, http.MethodGet, "/api/v1/roles", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, reviewer, http.MethodPost, "/api/v1/organizations", `{"name":"x"}`).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, reviewer, http.MethodDelete, "/api/v1/permissions/x:y", "").Code)

	assert.Equal(t, http.StatusOK, env.do(t, admin, http.MethodGet, "/api/v1/roles", "").Code)
	assert.Equal(t, http.StatusCreated, env.do(t, admin, http.MethodPost, "/api/v1/organizations", `{"name":"Acme"}`).Code)
	assert.Equal(t, http.StatusOK, env.do(t, reviewer, http.MethodGet, "/api/v1/organizations", "").Code)

	assert.Equal(t, http.StatusOK, env.do(t, reviewer, http.MethodGet, "/api/v1/events", "").Code)
	applicant := env.token(t, "alice", "", rbac.RoleApplicant)
	assert.Equal(t, http.StatusForbidden, env.do(t, applicant, http.MethodGet, "/api/v1/events", "").Code)

	metrics := env.do(t, "", http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, metrics, `taskboard_authz_denials_total{permission="role:manage",reason="missing permission"} 1`)
}

func TestServer_EventFeedRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "", http.MethodGet, "/api/v1/events/ws", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok := env.token(t, "alice", "", rbac.RoleApplicant)
	w = env.do(t, "", http.MethodGet, "/api/v1/events/ws?access_token="+tok, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
