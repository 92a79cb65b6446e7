package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taskboard-hq/taskboard/internal/rbac"
)

// Lister reads the event history.
type Lister interface {
	List(ctx context.Context, p ListParams) ([]Event, error)
}

// Handler serves the event history endpoint.
type Handler struct {
	store Lister
}

func NewHandler(store Lister) *Handler {
	return &Handler{store: store}
}

// HandleList returns recent events. Everyone but the global admin is pinned
// to their own organization.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	if actor == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	q := r.URL.Query()
	p := ListParams{
		ResourceType:   q.Get("resource_type"),
		ResourceID:     q.Get("resource_id"),
		OrganizationID: q.Get("organization_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		p.Limit = n
	}

	if !rbac.IsUnscoped(actor) {
		if actor.OrganizationID() == "" {
			writeJSON(w, http.StatusOK, []Event{})
			return
		}
		p.OrganizationID = actor.OrganizationID()
	}

	list, err := h.store.List(r.Context(), p)
	if err != nil {
		slog.Error("listing events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing events failed"})
		return
	}
	if list == nil {
		list = []Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
