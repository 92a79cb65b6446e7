package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryRoleStore keeps custom roles in process for database-less runs. It
// satisfies RoleWriter and RoleLoader.
type MemoryRoleStore struct {
	mu    sync.Mutex
	roles map[string]Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]Role)}
}

func (m *MemoryRoleStore) Create(_ context.Context, role Role) (*Role, error) {
	role.Code = strings.TrimSpace(role.Code)
	if role.Code == "" {
		return nil, ErrRoleCodeEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[role.Code]; ok || IsSystemRoleCode(role.Code) {
		return nil, fmt.Errorf("%w: %s", ErrRoleDuplicate, role.Code)
	}
	role.IsSystem = false
	role.Permissions = role.Permissions.clone()
	m.roles[role.Code] = role
	return &role, nil
}

func (m *MemoryRoleStore) Update(_ context.Context, role Role) (*Role, error) {
	if IsSystemRoleCode(role.Code) {
		return nil, ErrRoleIsSystem
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[role.Code]; !ok {
		return nil, ErrRoleNotFound
	}
	role.IsSystem = false
	role.Permissions = role.Permissions.clone()
	m.roles[role.Code] = role
	return &role, nil
}

func (m *MemoryRoleStore) Delete(_ context.Context, code string) error {
	if IsSystemRoleCode(code) {
		return ErrRoleIsSystem
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[code]; !ok {
		return ErrRoleNotFound
	}
	delete(m.roles, code)
	return nil
}

func (m *MemoryRoleStore) LoadRoles(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		r.Permissions = r.Permissions.clone()
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRoleStore) stripPermission(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, r := range m.roles {
		if !r.Permissions.Has(code) {
			continue
		}
		r.Permissions = r.Permissions.clone()
		delete(r.Permissions, code)
		m.roles[k] = r
	}
}

// MemoryPermissionStore is the in-process PermissionRepository, seeded
// with the built-in catalogue. Deleting a permission strips it from the
// roles held by the paired MemoryRoleStore.
type MemoryPermissionStore struct {
	mu    sync.Mutex
	perms map[string]Permission
	roles *MemoryRoleStore
}

func NewMemoryPermissionStore(roles *MemoryRoleStore) *MemoryPermissionStore {
	m := &MemoryPermissionStore{perms: make(map[string]Permission, len(BuiltinPermissions)), roles: roles}
	for _, p := range BuiltinPermissions {
		m.perms[p.Code] = p
	}
	return m
}

func (m *MemoryPermissionStore) List(_ context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryPermissionStore) Create(_ context.Context, p Permission) (*Permission, error) {
	if err := ValidateCode(p.Code); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.perms[p.Code]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDuplicate, p.Code)
	}
	p.IsSystem = false
	m.perms[p.Code] = p
	return &p, nil
}

func (m *MemoryPermissionStore) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	p, ok := m.perms[code]
	switch {
	case !ok:
		m.mu.Unlock()
		return ErrPermissionNotFound
	case p.IsSystem:
		m.mu.Unlock()
		return ErrPermissionIsSystem
	}
	delete(m.perms, code)
	m.mu.Unlock()

	if m.roles != nil {
		m.roles.stripPermission(code)
	}
	return nil
}
