package organization_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-hq/taskboard/internal/organization"
	"github.com/taskboard-hq/taskboard/internal/rbac"
)

func roleByCode(t *testing.T, code string) rbac.Role {
	t.Helper()
	for _, r := range rbac.SystemRoles() {
		if r.Code == code {
			return r
		}
	}
	t.Fatalf("no system role %q", code)
	return rbac.Role{}
}

func withActor(req *http.Request, a *rbac.Actor) *http.Request {
	if a == nil {
		return req
	}
	return req.WithContext(rbac.WithActor(req.Context(), a))
}

func TestHandler_Create(t *testing.T) {
	h := organization.NewHandler(organization.NewMemoryStore())
	admin := rbac.NewActor("admin", "", roleByCode(t, rbac.RoleGlobalAdmin))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations", strings.NewReader(`{"name":"  Acme  ","is_public":true}`))
	w := httptest.NewRecorder()
	h.HandleCreate(w, withActor(req, admin))

	require.Equal(t, http.StatusCreated, w.Code)
	var o organization.Organization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, "Acme", o.Name)
	assert.True(t, o.IsPublic)
	assert.NotEmpty(t, o.ID)
}

func TestHandler_Create_Invalid(t *testing.T) {
	h := organization.NewHandler(organization.NewMemoryStore())

	for _, body := range []string{`{"name":"   "}`, `{"name":"` + strings.Repeat("x", 201) + `"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.HandleCreate(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestHandler_Visibility(t *testing.T) {
	store := organization.NewMemoryStore()
	ctx := context.Background()
	private, err := store.Create(ctx, "Private Co", false)
	require.NoError(t, err)
	public, err := store.Create(ctx, "Open Co", true)
	require.NoError(t, err)
	other, err := store.Create(ctx, "Elsewhere", false)
	require.NoError(t, err)

	h := organization.NewHandler(store)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/organizations", h.HandleList)
	mux.HandleFunc("GET /api/v1/organizations/{id}", h.HandleGet)

	admin := rbac.NewActor("admin", "", roleByCode(t, rbac.RoleGlobalAdmin))
	member := rbac.NewActor("m", strings.ToUpper(private.ID), roleByCode(t, rbac.RoleReviewer))
	applicant := rbac.NewActor("a", "", roleByCode(t, rbac.RoleApplicant))

	list := func(a *rbac.Actor) []organization.Organization {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, withActor(req, a))
		require.Equal(t, http.StatusOK, w.Code)
		var out []organization.Organization
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	assert.Len(t, list(admin), 3)
	assert.Len(t, list(member), 2)
	got := list(applicant)
	require.Len(t, got, 1)
	assert.Equal(t, public.ID, got[0].ID)

	get := func(a *rbac.Actor, id string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/"+id, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, withActor(req, a))
		return w.Code
	}
	assert.Equal(t, http.StatusOK, get(member, private.ID))
	assert.Equal(t, http.StatusNotFound, get(member, other.ID))
	assert.Equal(t, http.StatusOK, get(applicant, public.ID))
	assert.Equal(t, http.StatusOK, get(admin, other.ID))
	assert.Equal(t, http.StatusNotFound, get(admin, "missing"))
	assert.Equal(t, http.StatusUnauthorized, get(nil, public.ID))
}
