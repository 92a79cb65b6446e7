package auth

import (
	"errors"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Identity represents an authenticated user's claims. Role codes are
// resolved into permissions by the role catalog, never trusted as
// permissions themselves.
type Identity struct {
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id,omitempty"`
	Email          string   `json:"email,omitempty"`
	DisplayName    string   `json:"display_name,omitempty"`
	Roles          []string `json:"roles"`
	TokenType      string   `json:"token_type"` // "access" or "refresh"
}
