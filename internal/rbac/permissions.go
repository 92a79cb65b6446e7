package rbac

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var (
	ErrPermissionNotFound  = errors.New("permission not found")
	ErrPermissionDuplicate = errors.New("permission code already exists")
	ErrPermissionIsSystem  = errors.New("system permissions cannot be deleted")
	ErrInvalidCode         = errors.New("invalid permission code")
)

// Permission categories.
const (
	CategoryTask           = "task"
	CategoryApplication    = "application"
	CategoryDashboard      = "dashboard"
	CategoryAdministration = "administration"
)

// Built-in permission codes.
const (
	PermTaskCreate      = "task:create"
	PermTaskRead        = "task:read"
	PermTaskUpdate      = "task:update"
	PermTaskSubmit      = "task:submit"
	PermTaskApprove     = "task:approve"
	PermTaskDelete      = "task:delete"
	PermTaskAutoPublish = "task:auto_publish"

	PermApplicationCreate    = "application:create"
	PermApplicationRead      = "application:read"
	PermApplicationShortlist = "application:shortlist"
	PermApplicationApprove   = "application:approve"
	PermApplicationReject    = "application:reject"
	PermApplicationConfirm   = "application:confirm"

	PermDashboardView = "dashboard:view"

	PermRoleManage         = "role:manage"
	PermPermissionManage   = "permission:manage"
	PermOrganizationManage = "organization:manage"
)

// Permission is a single capability referenced everywhere by its code.
type Permission struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
	IsSystem bool   `json:"is_system"`
}

// BuiltinPermissions is the static catalogue shipped with the engine.
var BuiltinPermissions = []Permission{
	{Code: PermTaskCreate, Name: "Create tasks", Category: CategoryTask, IsSystem: true},
	{Code: PermTaskRead, Name: "View tasks", Category: CategoryTask, IsSystem: true},
	{Code: PermTaskUpdate, Name: "Update own tasks", Category: CategoryTask, IsSystem: true},
	{Code: PermTaskSubmit, Name: "Submit tasks for review", Category: CategoryTask, IsSystem: true},
	{Code: PermTaskApprove, Name: "Approve, decline and close tasks", Category: CategoryTask, IsSystem: true},
	{Code: PermTaskDelete, Name: "Archive tasks", Category: CategoryTask, IsSystem: true},
	{Code: PermTaskAutoPublish, Name: "Publish tasks without review", Category: CategoryTask, IsSystem: true},

	{Code: PermApplicationCreate, Name: "Apply for tasks", Category: CategoryApplication, IsSystem: true},
	{Code: PermApplicationRead, Name: "View applicants", Category: CategoryApplication, IsSystem: true},
	{Code: PermApplicationShortlist, Name: "Shortlist applications", Category: CategoryApplication, IsSystem: true},
	{Code: PermApplicationApprove, Name: "Send offers", Category: CategoryApplication, IsSystem: true},
	{Code: PermApplicationReject, Name: "Reject applications and decline offers", Category: CategoryApplication, IsSystem: true},
	{Code: PermApplicationConfirm, Name: "Accept offers", Category: CategoryApplication, IsSystem: true},

	{Code: PermDashboardView, Name: "View dashboard", Category: CategoryDashboard, IsSystem: true},

	{Code: PermRoleManage, Name: "Manage roles", Category: CategoryAdministration, IsSystem: true},
	{Code: PermPermissionManage, Name: "Manage permissions", Category: CategoryAdministration, IsSystem: true},
	{Code: PermOrganizationManage, Name: "Manage organizations", Category: CategoryAdministration, IsSystem: true},
}

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(:[a-z][a-z0-9_]*)+$`)

// ValidateCode checks that a code has the "resource:action" shape.
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return fmt.Errorf("%w: %q must look like \"resource:action\"", ErrInvalidCode, code)
	}
	return nil
}

// Registry is an immutable lookup over a set of permissions.
type Registry struct {
	byCode map[string]Permission
}

// NewRegistry indexes perms by code. Later entries win on duplicate codes.
func NewRegistry(perms ...Permission) *Registry {
	r := &Registry{byCode: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		r.byCode[p.Code] = p
	}
	return r
}

// DefaultRegistry returns a registry over BuiltinPermissions.
func DefaultRegistry() *Registry {
	return NewRegistry(BuiltinPermissions...)
}

// Lookup returns the permission registered under code.
func (r *Registry) Lookup(code string) (Permission, bool) {
	p, ok := r.byCode[code]
	return p, ok
}

// Codes returns every registered code, sorted.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.byCode))
	for c := range r.byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// ByCategory groups permissions by category, each group sorted by code.
func (r *Registry) ByCategory() map[string][]Permission {
	out := make(map[string][]Permission)
	for _, code := range r.Codes() {
		p := r.byCode[code]
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}
