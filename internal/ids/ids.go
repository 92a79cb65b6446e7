package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh random identifier in canonical form.
func New() string {
	return uuid.NewString()
}

// Normalize returns the canonical string form of an identifier. UUIDs are
// rendered lowercase and hyphenated regardless of how they arrived (braced,
// urn-prefixed, uppercase); any other identifier is only trimmed.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// Equal reports whether a and b name the same non-empty identifier.
func Equal(a, b string) bool {
	na := Normalize(a)
	if na == "" {
		return false
	}
	return na == Normalize(b)
}
