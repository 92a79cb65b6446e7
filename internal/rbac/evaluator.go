package rbac

import "github.com/taskboard-hq/taskboard/internal/ids"

// ResourceContext carries the facts about a resource the scoped checks need.
type ResourceContext struct {
	OrganizationID string
	OwnerID        string
}

// HasPermission reports whether code is in the actor's permission set.
func HasPermission(a *Actor, code string) bool {
	if a == nil {
		return false
	}
	return a.permissions.Has(code)
}

// HasAnyPermission reports whether the actor holds at least one of codes.
func HasAnyPermission(a *Actor, codes ...string) bool {
	for _, c := range codes {
		if HasPermission(a, c) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether codes is a subset of the actor's
// permissions. A nil actor holds nothing, not even the empty set.
func HasAllPermissions(a *Actor, codes ...string) bool {
	if a == nil {
		return false
	}
	for _, c := range codes {
		if !a.permissions.Has(c) {
			return false
		}
	}
	return true
}

// Check is HasPermission with a reason attached.
func Check(a *Actor, code string) Decision {
	if a == nil {
		return deny(ReasonNoActor)
	}
	if !a.permissions.Has(code) {
		return deny(ReasonMissingPermission)
	}
	return allowed
}

// CheckWithContext requires the permission and, unless the actor is the
// global admin, that the resource belongs to the actor's organization. A
// missing organization on either side is a mismatch.
func CheckWithContext(a *Actor, code string, rc ResourceContext) Decision {
	if d := Check(a, code); !d.Allowed {
		return d
	}
	if a.globalAdmin {
		return allowed
	}
	if !ids.Equal(rc.OrganizationID, a.organizationID) {
		return deny(ReasonOrganizationMismatch)
	}
	return allowed
}

// CheckOwner requires the permission and that the actor is the resource's
// owner. Organization membership is not consulted.
func CheckOwner(a *Actor, code, ownerID string) Decision {
	if d := Check(a, code); !d.Allowed {
		return d
	}
	if !a.Is(ownerID) {
		return deny(ReasonNotOwner)
	}
	return allowed
}

// CheckOwnerWithContext is CheckOwner plus the organization guard. A
// resource without an organization belongs to its owner alone and passes
// the guard.
func CheckOwnerWithContext(a *Actor, code string, rc ResourceContext) Decision {
	if d := CheckOwner(a, code, rc.OwnerID); !d.Allowed {
		return d
	}
	if a.globalAdmin || ids.Normalize(rc.OrganizationID) == "" {
		return allowed
	}
	if !ids.Equal(rc.OrganizationID, a.organizationID) {
		return deny(ReasonOrganizationMismatch)
	}
	return allowed
}

// CanWithContext is the boolean form of CheckWithContext.
func CanWithContext(a *Actor, code string, rc ResourceContext) bool {
	return CheckWithContext(a, code, rc).Allowed
}

// CheckOverride allows the global admin unconditionally and everyone else
// only with code.
func CheckOverride(a *Actor, code string) Decision {
	if a != nil && a.globalAdmin {
		return allowed
	}
	return Check(a, code)
}

// BypassesPreconditions reports whether the actor may skip the intermediate
// lifecycle steps a transition normally requires.
func BypassesPreconditions(a *Actor) bool {
	return a != nil && a.globalAdmin
}

func CanAutoPublish(a *Actor) bool {
	return HasPermission(a, PermTaskAutoPublish)
}

func CanViewDashboard(a *Actor) bool {
	return HasPermission(a, PermDashboardView)
}

func CanApplyForTasks(a *Actor) bool {
	return HasPermission(a, PermApplicationCreate)
}

// CanViewApplicants allows holders of application:read and the task's creator.
func CanViewApplicants(a *Actor, taskOwnerID string) bool {
	return HasPermission(a, PermApplicationRead) || a.Is(taskOwnerID)
}

// Reviewer actions on applications.
const (
	ApplicationActionShortlist = "shortlist"
	ApplicationActionOffer     = "offer"
	ApplicationActionReject    = "reject"
)

var applicationActionPermissions = map[string]string{
	ApplicationActionShortlist: PermApplicationShortlist,
	ApplicationActionOffer:     PermApplicationApprove,
	ApplicationActionReject:    PermApplicationReject,
}

// CheckApplicationStatus gates a reviewer action on an application of a task
// owned by taskOrgID.
func CheckApplicationStatus(a *Actor, action, taskOrgID string) Decision {
	code, ok := applicationActionPermissions[action]
	if !ok {
		return deny(ReasonMissingPermission)
	}
	return CheckWithContext(a, code, ResourceContext{OrganizationID: taskOrgID})
}

func CanManageApplicationStatus(a *Actor, action, taskOrgID string) bool {
	return CheckApplicationStatus(a, action, taskOrgID).Allowed
}

// IsUnscoped reports whether the actor is exempt from organization scoping,
// e.g. when deciding which organizations a listing may span.
func IsUnscoped(a *Actor) bool {
	return a != nil && a.globalAdmin
}
