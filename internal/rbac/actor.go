package rbac

import (
	"encoding/json"
	"sort"

	"github.com/taskboard-hq/taskboard/internal/ids"
)

// Actor is the immutable identity snapshot every authorization decision is
// made against.
type Actor struct {
	userID         string
	organizationID string
	roleCodes      []string
	permissions    PermissionSet
	globalAdmin    bool
}

// NewActor resolves an actor from its assigned roles. Identifiers are
// normalized; the effective permission set is the merge of active roles.
func NewActor(userID, organizationID string, roles ...Role) *Actor {
	seen := make(map[string]bool, len(roles))
	codes := make([]string, 0, len(roles))
	admin := false
	for _, r := range roles {
		if !seen[r.Code] {
			seen[r.Code] = true
			codes = append(codes, r.Code)
		}
		if r.Code == RoleGlobalAdmin && r.IsSystem && r.IsActive {
			admin = true
		}
	}
	sort.Strings(codes)
	return &Actor{
		userID:         ids.Normalize(userID),
		organizationID: ids.Normalize(organizationID),
		roleCodes:      codes,
		permissions:    Merge(roles...),
		globalAdmin:    admin,
	}
}

func (a *Actor) UserID() string         { return a.userID }
func (a *Actor) OrganizationID() string { return a.organizationID }

// RoleCodes returns the assigned role codes, sorted.
func (a *Actor) RoleCodes() []string {
	return append([]string(nil), a.roleCodes...)
}

// Permissions returns a copy of the effective permission set.
func (a *Actor) Permissions() PermissionSet {
	return a.permissions.clone()
}

// IsGlobalAdmin reports whether the actor holds the system administrator
// role. Only exposed for display; guards go through the evaluator.
func (a *Actor) IsGlobalAdmin() bool { return a.globalAdmin }

// Is reports whether the actor is the user identified by userID.
func (a *Actor) Is(userID string) bool {
	return a != nil && ids.Equal(a.userID, userID)
}

// MarshalJSON renders the snapshot for display.
func (a *Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID         string        `json:"user_id"`
		OrganizationID string        `json:"organization_id,omitempty"`
		Roles          []string      `json:"roles"`
		Permissions    PermissionSet `json:"permissions"`
		IsGlobalAdmin  bool          `json:"is_global_admin"`
	}{a.userID, a.organizationID, a.roleCodes, a.permissions, a.globalAdmin})
}
