package task

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taskboard-hq/taskboard/internal/rbac"
	"github.com/taskboard-hq/taskboard/internal/workflow"
)

// Handler exposes the Task lifecycle over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// HandleCreate creates a draft task.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Visibility  string `json:"visibility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.svc.Create(r.Context(), rbac.ActorFromContext(r.Context()), CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HandleList lists visible tasks. Query: status, mine=true, limit.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := ListOptions{
		Status: Status(q.Get("status")),
		Mine:   q.Get("mine") == "true",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		opts.Limit = n
	}

	tasks, err := h.svc.List(r.Context(), rbac.ActorFromContext(r.Context()), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// HandleGet returns a single task.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), rbac.ActorFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleTransition applies the transition named by the {action} path
// segment.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := rbac.ActorFromContext(ctx)
	id := r.PathValue("id")

	var (
		t   *Task
		err error
	)
	switch r.PathValue("action") {
	case ActionSubmit:
		t, err = h.svc.Submit(ctx, actor, id)
	case ActionApprove:
		t, err = h.svc.Approve(ctx, actor, id)
	case ActionDecline:
		r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
		var req struct {
			Reason string `json:"reason"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		t, err = h.svc.Decline(ctx, actor, id, req.Reason)
	case ActionResubmit:
		t, err = h.svc.Resubmit(ctx, actor, id)
	case ActionClose:
		t, err = h.svc.Close(ctx, actor, id)
	case ActionArchive:
		t, err = h.svc.Archive(ctx, actor, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transition"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func writeError(w http.ResponseWriter, err error) {
	status := workflow.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("task request failed", "error", err)
	}
	writeJSON(w, status, workflow.Body(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
