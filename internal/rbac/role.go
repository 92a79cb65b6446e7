package rbac

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

var (
	ErrRoleNotFound  = errors.New("role not found")
	ErrRoleCodeEmpty = errors.New("role code is required")
	ErrRoleDuplicate = errors.New("role code already exists")
	ErrRoleIsSystem  = errors.New("system roles cannot be deleted or demoted")
)

// System role codes.
const (
	RoleGlobalAdmin = "global_admin"
	RoleOrgAdmin    = "org_admin"
	RoleReviewer    = "reviewer"
	RoleTaskCreator = "task_creator"
	RoleApplicant   = "applicant"
)

// PermissionSet is an unordered set of permission codes. It encodes to JSON
// as a sorted array.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from codes; blanks are dropped, duplicates collapse.
func NewPermissionSet(codes ...string) PermissionSet {
	s := make(PermissionSet, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		s[c] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the members sorted.
func (s PermissionSet) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Codes())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return err
	}
	*s = NewPermissionSet(codes...)
	return nil
}

// Role is a named bundle of permission codes.
type Role struct {
	Code        string        `json:"code"`
	Name        string        `json:"name"`
	Permissions PermissionSet `json:"permissions"`
	IsSystem    bool          `json:"is_system"`
	IsActive    bool          `json:"is_active"`
}

// Merge returns the union of permissions held by the active roles.
func Merge(roles ...Role) PermissionSet {
	out := make(PermissionSet)
	for _, r := range roles {
		if !r.IsActive {
			continue
		}
		for c := range r.Permissions {
			out[c] = struct{}{}
		}
	}
	return out
}

// SystemRoles returns the roles seeded into every catalog. The global admin
// role carries every built-in permission.
func SystemRoles() []Role {
	all := make([]string, 0, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		all = append(all, p.Code)
	}
	return []Role{
		{
			Code:        RoleGlobalAdmin,
			Name:        "Global administrator",
			Permissions: NewPermissionSet(all...),
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Code: RoleOrgAdmin,
			Name: "Organization administrator",
			Permissions: NewPermissionSet(
				PermTaskCreate, PermTaskRead, PermTaskUpdate, PermTaskSubmit,
				PermTaskApprove, PermTaskDelete, PermTaskAutoPublish,
				PermApplicationRead, PermApplicationShortlist,
				PermApplicationApprove, PermApplicationReject,
				PermDashboardView,
			),
			IsSystem: true,
			IsActive: true,
		},
		{
			Code: RoleReviewer,
			Name: "Reviewer",
			Permissions: NewPermissionSet(
				PermTaskRead, PermTaskApprove,
				PermApplicationRead, PermApplicationShortlist,
				PermApplicationApprove, PermApplicationReject,
				PermDashboardView,
			),
			IsSystem: true,
			IsActive: true,
		},
		{
			Code: RoleTaskCreator,
			Name: "Task creator",
			Permissions: NewPermissionSet(
				PermTaskCreate, PermTaskRead, PermTaskUpdate, PermTaskSubmit,
				PermDashboardView,
			),
			IsSystem: true,
			IsActive: true,
		},
		{
			Code: RoleApplicant,
			Name: "Applicant",
			Permissions: NewPermissionSet(
				PermTaskRead, PermApplicationCreate,
				PermApplicationConfirm, PermApplicationReject,
			),
			IsSystem: true,
			IsActive: true,
		},
	}
}

// IsSystemRoleCode reports whether code names a seeded system role.
func IsSystemRoleCode(code string) bool {
	for _, r := range SystemRoles() {
		if r.Code == code {
			return true
		}
	}
	return false
}
