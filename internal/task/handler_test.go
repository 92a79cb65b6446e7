package task_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-hq/taskboard/internal/rbac"
	"github.com/taskboard-hq/taskboard/internal/task"
)

func newTaskMux(svc *task.Service) *http.ServeMux {
	h := task.NewHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", h.HandleCreate)
	mux.HandleFunc("GET /tasks", h.HandleList)
	mux.HandleFunc("GET /tasks/{id}", h.HandleGet)
	mux.HandleFunc("POST /tasks/{id}/{action}", h.HandleTransition)
	return mux
}

func call(t *testing.T, mux *http.ServeMux, a *rbac.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if a != nil {
		req = req.WithContext(rbac.WithActor(req.Context(), a))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_Lifecycle(t *testing.T) {
	mux := newTaskMux(task.NewService(task.NewMemoryStore()))
	creator := actor(t, "creator", "org-1", rbac.RoleTaskCreator)
	reviewer := actor(t, "rev", "org-1", rbac.RoleReviewer)

	w := call(t, mux, creator, http.MethodPost, "/tasks", `{"title":"Paint fence","visibility":"external"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created task.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, task.StatusDraft, created.Status)

	w = call(t, mux, creator, http.MethodPost, "/tasks/"+created.ID+"/submit", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, mux, reviewer, http.MethodPost, "/tasks/"+created.ID+"/decline", `{"reason":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"validation_error","reason":"rejection reason is required"}`, w.Body.String())

	w = call(t, mux, reviewer, http.MethodPost, "/tasks/"+created.ID+"/approve", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, mux, reviewer, http.MethodPost, "/tasks/"+created.ID+"/approve", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "conflict", body["error"])
	assert.Equal(t, "invalid current state", body["reason"])

	w = call(t, mux, reviewer, http.MethodGet, "/tasks/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, mux, reviewer, http.MethodGet, "/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed []task.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listed))
	assert.Len(t, listed, 1)
}

func TestHandler_Errors(t *testing.T) {
	mux := newTaskMux(task.NewService(task.NewMemoryStore()))
	creator := actor(t, "creator", "org-1", rbac.RoleTaskCreator)
	outsider := actor(t, "rev", "org-2", rbac.RoleReviewer)

	w := call(t, mux, creator, http.MethodPost, "/tasks", `{"title":"t"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created task.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.Equal(t, http.StatusOK, call(t, mux, creator, http.MethodPost, "/tasks/"+created.ID+"/submit", "").Code)

	w = call(t, mux, outsider, http.MethodPost, "/tasks/"+created.ID+"/approve", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"forbidden","reason":"organization mismatch"}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, call(t, mux, creator, http.MethodPost, "/tasks/"+created.ID+"/explode", "").Code)
	assert.Equal(t, http.StatusNotFound, call(t, mux, creator, http.MethodGet, "/tasks/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, mux, creator, http.MethodPost, "/tasks", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, mux, creator, http.MethodGet, "/tasks?limit=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, mux, outsider, http.MethodPost, "/tasks/"+created.ID+"/decline", `{`).Code)
	assert.Equal(t, http.StatusForbidden, call(t, mux, nil, http.MethodPost, "/tasks", `{"title":"t"}`).Code)
}
