package events_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-hq/taskboard/internal/auth"
	"github.com/taskboard-hq/taskboard/internal/events"
	"github.com/taskboard-hq/taskboard/internal/rbac"
)

type fakeLister struct {
	got events.ListParams
}

func (f *fakeLister) List(_ context.Context, p events.ListParams) ([]events.Event, error) {
	f.got = p
	return []events.Event{{Type: events.TaskCreated, OrganizationID: p.OrganizationID}}, nil
}

func listAs(t *testing.T, actor *rbac.Actor, query string) (*fakeLister, *httptest.ResponseRecorder) {
	t.Helper()
	lister := &fakeLister{}
	h := events.NewHandler(lister)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events"+query, nil)
	if actor != nil {
		req = req.WithContext(rbac.WithActor(req.Context(), actor))
	}
	w := httptest.NewRecorder()
	h.HandleList(w, req)
	return lister, w
}

func TestHandleList_PinsOrganization(t *testing.T) {
	catalog := rbac.NewCatalog()
	reviewer := catalog.ResolveActor(&auth.Identity{UserID: "rev", OrganizationID: "org-1", Roles: []string{rbac.RoleReviewer}})

	lister, w := listAs(t, reviewer, "?organization_id=org-2&resource_type=task&limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, events.ListParams{ResourceType: "task", OrganizationID: "org-1", Limit: 10}, lister.got)
}

func TestHandleList_GlobalAdminChoosesOrganization(t *testing.T) {
	catalog := rbac.NewCatalog()
	admin := catalog.ResolveActor(&auth.Identity{UserID: "root", Roles: []string{rbac.RoleGlobalAdmin}})

	lister, w := listAs(t, admin, "?organization_id=org-2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "org-2", lister.got.OrganizationID)

	var body []events.Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Len(t, body, 1)
}

func TestHandleList_IndependentActorSeesNothing(t *testing.T) {
	catalog := rbac.NewCatalog()
	creator := catalog.ResolveActor(&auth.Identity{UserID: "solo", Roles: []string{rbac.RoleTaskCreator}})

	_, w := listAs(t, creator, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleList_BadInput(t *testing.T) {
	catalog := rbac.NewCatalog()
	admin := catalog.ResolveActor(&auth.Identity{UserID: "root", Roles: []string{rbac.RoleGlobalAdmin}})

	_, w := listAs(t, admin, "?limit=ten")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, w = listAs(t, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
