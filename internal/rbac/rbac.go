// Package rbac resolves actors from role assignments and answers whether an
// actor may perform an operation, optionally scoped to a resource's
// organization and owner.
package rbac

// Decision represents the result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Denial reasons reported by the evaluator.
const (
	ReasonNoActor              = "no actor"
	ReasonMissingPermission    = "missing permission"
	ReasonOrganizationMismatch = "organization mismatch"
	ReasonNotOwner             = "not the resource owner"
)

var allowed = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
