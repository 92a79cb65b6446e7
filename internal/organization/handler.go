package organization

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskboard-hq/taskboard/internal/ids"
	"github.com/taskboard-hq/taskboard/internal/rbac"
)

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// canManage reports whether the actor administers organizations.
func canManage(a *rbac.Actor) bool {
	return rbac.HasPermission(a, rbac.PermOrganizationManage)
}

// visible: managers see every organization; everyone else sees public
// ones and their own.
func visible(a *rbac.Actor, o *Organization) bool {
	return canManage(a) || o.IsPublic || ids.Equal(o.ID, a.OrganizationID())
}

// HandleCreate creates a new organization. Requires organization:manage,
// applied by the router.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req struct {
		Name     string `json:"name"`
		IsPublic bool   `json:"is_public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	o, err := h.repo.Create(r.Context(), req.Name, req.IsPublic)
	if err != nil {
		if errors.Is(err, ErrNameRequired) || errors.Is(err, ErrNameTooLong) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("organization creation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "organization creation failed"})
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

// HandleGet returns an organization by id. Organizations the caller may not
// see are reported as not found.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	if actor == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	o, err := h.repo.Get(r.Context(), ids.Normalize(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "organization not found"})
			return
		}
		slog.Error("fetching organization failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fetching organization failed"})
		return
	}
	if !visible(actor, o) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "organization not found"})
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// HandleList returns the organizations visible to the caller.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	if actor == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	orgs, err := h.repo.List(r.Context())
	if err != nil {
		slog.Error("listing organizations failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing organizations failed"})
		return
	}

	out := make([]Organization, 0, len(orgs))
	for i := range orgs {
		if visible(actor, &orgs[i]) {
			out = append(out, orgs[i])
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
