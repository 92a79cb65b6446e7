package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Reloader is called after role or permission mutations to refresh the catalog.
type Reloader interface {
	ReloadRoles(ctx context.Context) error
}

// RoleWriter is the subset of RoleStore the handler mutates through.
type RoleWriter interface {
	Create(ctx context.Context, role Role) (*Role, error)
	Update(ctx context.Context, role Role) (*Role, error)
	Delete(ctx context.Context, code string) error
}

// PermissionRepository is the subset of PermissionStore the handler uses.
type PermissionRepository interface {
	List(ctx context.Context) ([]Permission, error)
	Create(ctx context.Context, p Permission) (*Permission, error)
	Delete(ctx context.Context, code string) error
}

// Handler serves the role and permission administration endpoints.
type Handler struct {
	catalog     *Catalog
	roles       RoleWriter
	permissions PermissionRepository
	reloader    Reloader
}

func NewHandler(catalog *Catalog, roles RoleWriter, permissions PermissionRepository, reloader Reloader) *Handler {
	return &Handler{catalog: catalog, roles: roles, permissions: permissions, reloader: reloader}
}

type roleRequest struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	IsActive    *bool    `json:"is_active"`
}

func (req roleRequest) role() Role {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Role{
		Code:        strings.TrimSpace(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Permissions: NewPermissionSet(req.Permissions...),
		IsActive:    active,
	}
}

// HandleListRoles returns every role in the catalog, system roles included.
func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Roles())
}

// HandleCreateRole creates a custom role.
func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	role, err := h.roles.Create(r.Context(), req.role())
	if err != nil {
		writeRoleError(w, err, "role creation failed")
		return
	}

	h.reload(r.Context(), "create role")
	writeJSON(w, http.StatusCreated, role)
}

// HandleUpdateRole replaces a custom role's definition.
func (h *Handler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	code := r.PathValue("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing role code"})
		return
	}

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Code = code

	role, err := h.roles.Update(r.Context(), req.role())
	if err != nil {
		writeRoleError(w, err, "role update failed")
		return
	}

	h.reload(r.Context(), "update role")
	writeJSON(w, http.StatusOK, role)
}

// HandleDeleteRole removes a custom role.
func (h *Handler) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing role code"})
		return
	}

	if err := h.roles.Delete(r.Context(), code); err != nil {
		writeRoleError(w, err, "role deletion failed")
		return
	}

	h.reload(r.Context(), "delete role")
	w.WriteHeader(http.StatusNoContent)
}

// HandleListPermissions returns the permission catalogue.
func (h *Handler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.permissions.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing permissions failed"})
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	writeJSON(w, http.StatusOK, perms)
}

// HandleCreatePermission registers a custom permission code.
func (h *Handler) HandleCreatePermission(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req struct {
		Code     string `json:"code"`
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	perm, err := h.permissions.Create(r.Context(), Permission{
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Category: strings.TrimSpace(req.Category),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrPermissionDuplicate):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			slog.Error("creating permission", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "permission creation failed"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, perm)
}

// HandleDeletePermission removes a custom permission and strips it from
// every role that granted it.
func (h *Handler) HandleDeletePermission(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing permission code"})
		return
	}

	if err := h.permissions.Delete(r.Context(), code); err != nil {
		switch {
		case errors.Is(err, ErrPermissionNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrPermissionIsSystem):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		default:
			slog.Error("deleting permission", "code", code, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "permission deletion failed"})
		}
		return
	}

	h.reload(r.Context(), "delete permission")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reload(ctx context.Context, op string) {
	if h.reloader == nil {
		return
	}
	if err := h.reloader.ReloadRoles(ctx); err != nil {
		slog.Error("failed to reload role catalog", "after", op, "error", err)
	}
}

func writeRoleError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrRoleCodeEmpty):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRoleNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRoleDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRoleIsSystem):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		slog.Error(fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

// HandleMe returns the caller's resolved actor and the capability flags a
// client may use for display. The server evaluation stays authoritative.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if actor == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actor":            actor,
		"canAutoPublish":   CanAutoPublish(actor),
		"canViewDashboard": CanViewDashboard(actor),
		"canApplyForTasks": CanApplyForTasks(actor),
	})
}
