// Package organization holds the scoping groups tasks and actors belong to.
package organization

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("organization not found")
	ErrNameRequired = errors.New("organization name is required")
	ErrNameTooLong  = errors.New("organization name exceeds 200 characters")
)

// Organization represents an organization in the system.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateName trims name and checks it is usable.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if len(name) > 200 {
		return "", ErrNameTooLong
	}
	return name, nil
}

// Repository is the persistence contract used by the handler.
type Repository interface {
	Create(ctx context.Context, name string, isPublic bool) (*Organization, error)
	Get(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
}
