package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taskboard-hq/taskboard/internal/auth"
)

// RoleLoader loads role definitions from a backing store.
type RoleLoader interface {
	LoadRoles(ctx context.Context) ([]Role, error)
}

// CatalogOption configures the Catalog.
type CatalogOption func(*Catalog)

// WithRoleLoader sets a RoleLoader for DB-backed role loading.
func WithRoleLoader(loader RoleLoader) CatalogOption {
	return func(c *Catalog) {
		c.loader = loader
	}
}

// Catalog is the read-mostly, in-memory role table actors are resolved
// against. It always contains the system roles.
type Catalog struct {
	loader RoleLoader
	roles  map[string]Role // code → role
	mu     sync.RWMutex
}

func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{roles: seedRoles()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func seedRoles() map[string]Role {
	seeded := make(map[string]Role)
	for _, r := range SystemRoles() {
		seeded[r.Code] = r
	}
	return seeded
}

// ReloadRoles loads roles from the RoleLoader and replaces the in-memory map.
// If loading fails, the existing map is preserved. Stored rows override the
// seeded definitions, but a system code stays a system role.
func (c *Catalog) ReloadRoles(ctx context.Context) error {
	if c.loader == nil {
		return fmt.Errorf("no role loader configured")
	}

	defs, err := c.loader.LoadRoles(ctx)
	if err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}

	newRoles := seedRoles()
	for _, d := range defs {
		if _, seeded := newRoles[d.Code]; seeded {
			d.IsSystem = true
		}
		newRoles[d.Code] = d
	}

	c.mu.Lock()
	c.roles = newRoles
	c.mu.Unlock()

	return nil
}

// Run reloads the catalog every interval until ctx is done. Reload failures
// are logged and the previous snapshot stays in effect.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) error {
	if c.loader == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.ReloadRoles(ctx); err != nil {
				slog.Error("role catalog reload failed", "error", err)
			}
		}
	}
}

// RegisterRole adds or replaces a role in the in-memory catalog.
func (c *Catalog) RegisterRole(role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	role.Permissions = role.Permissions.clone()
	c.roles[role.Code] = role
}

// Role returns the role registered under code.
func (c *Catalog) Role(code string) (Role, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.roles[code]
	return r, ok
}

// Roles returns every role sorted by code.
func (c *Catalog) Roles() []Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Role, 0, len(c.roles))
	for _, r := range c.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ResolveActor builds the actor snapshot for an identity. Unknown role codes
// contribute nothing.
func (c *Catalog) ResolveActor(identity *auth.Identity) *Actor {
	if identity == nil {
		return nil
	}

	c.mu.RLock()
	roles := make([]Role, 0, len(identity.Roles))
	for _, code := range identity.Roles {
		if r, ok := c.roles[code]; ok {
			roles = append(roles, r)
		}
	}
	c.mu.RUnlock()

	return NewActor(identity.UserID, identity.OrganizationID, roles...)
}
