package application

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/taskboard-hq/taskboard/internal/rbac"
	"github.com/taskboard-hq/taskboard/internal/workflow"
)

// Handler exposes the Application lifecycle over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// HandleSubmit files an application against the task in the {id} path
// segment. The body is optional.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	app, err := h.svc.Submit(r.Context(), rbac.ActorFromContext(r.Context()), r.PathValue("id"), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// HandleListForTask lists the applications of the task in {id}. Query: status.
func (h *Handler) HandleListForTask(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListForTask(r.Context(), rbac.ActorFromContext(r.Context()),
		r.PathValue("id"), Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListMine lists the caller's own applications. Query: status.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListMine(r.Context(), rbac.ActorFromContext(r.Context()), Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Get(r.Context(), rbac.ActorFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// HandleTransition applies the transition named by the {action} path
// segment.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := rbac.ActorFromContext(ctx)
	id := r.PathValue("id")

	var (
		app *Application
		err error
	)
	switch r.PathValue("action") {
	case ActionShortlist:
		app, err = h.svc.Shortlist(ctx, actor, id)
	case ActionOffer:
		app, err = h.svc.SendOffer(ctx, actor, id)
	case ActionReject:
		app, err = h.svc.Reject(ctx, actor, id)
	case ActionConfirm:
		app, err = h.svc.ConfirmOffer(ctx, actor, id)
	case ActionDecline:
		app, err = h.svc.DeclineOffer(ctx, actor, id)
	case ActionWithdraw:
		app, err = h.svc.Withdraw(ctx, actor, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transition"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func writeError(w http.ResponseWriter, err error) {
	status := workflow.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("application request failed", "error", err)
	}
	writeJSON(w, status, workflow.Body(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
