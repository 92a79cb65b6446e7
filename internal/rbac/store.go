package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/taskboard-hq/taskboard/internal/platform/database"
)

// RoleStore persists custom roles. System roles live in code and are never
// written here.
type RoleStore struct {
	db database.Querier
}

func NewRoleStore(db database.Querier) *RoleStore {
	return &RoleStore{db: db}
}

var _ RoleLoader = (*RoleStore)(nil)

const roleColumns = `code, name, permissions, is_system, is_active`

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	var permBytes []byte
	if err := row.Scan(&role.Code, &role.Name, &permBytes, &role.IsSystem, &role.IsActive); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(permBytes, &role.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshaling permissions: %w", err)
	}
	return &role, nil
}

// Create inserts a new custom role.
func (s *RoleStore) Create(ctx context.Context, role Role) (*Role, error) {
	role.Code = strings.TrimSpace(role.Code)
	if role.Code == "" {
		return nil, ErrRoleCodeEmpty
	}
	if IsSystemRoleCode(role.Code) {
		return nil, fmt.Errorf("%w: %s", ErrRoleDuplicate, role.Code)
	}

	permJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshaling permissions: %w", err)
	}

	created, err := scanRole(s.db.QueryRow(ctx,
		`INSERT INTO roles (code, name, permissions, is_system, is_active)
		 VALUES ($1, $2, $3, false, $4)
		 RETURNING `+roleColumns,
		role.Code, role.Name, permJSON, role.IsActive,
	))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrRoleDuplicate, role.Code)
		}
		return nil, fmt.Errorf("creating role: %w", err)
	}
	return created, nil
}

// Get retrieves a custom role by code.
func (s *RoleStore) Get(ctx context.Context, code string) (*Role, error) {
	role, err := scanRole(s.db.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("getting role: %w", err)
	}
	return role, nil
}

// List returns all custom roles ordered by code.
func (s *RoleStore) List(ctx context.Context) ([]Role, error) {
	rows, err := s.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, *r)
	}
	return roles, rows.Err()
}

// LoadRoles implements RoleLoader.
func (s *RoleStore) LoadRoles(ctx context.Context) ([]Role, error) {
	return s.List(ctx)
}

// Update replaces a custom role's name, permissions and active flag.
func (s *RoleStore) Update(ctx context.Context, role Role) (*Role, error) {
	if IsSystemRoleCode(role.Code) {
		return nil, ErrRoleIsSystem
	}

	permJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshaling permissions: %w", err)
	}

	updated, err := scanRole(s.db.QueryRow(ctx,
		`UPDATE roles SET name = $2, permissions = $3, is_active = $4, updated_at = now()
		 WHERE code = $1 AND NOT is_system
		 RETURNING `+roleColumns,
		role.Code, role.Name, permJSON, role.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("updating role: %w", err)
	}
	return updated, nil
}

// Delete removes a custom role.
func (s *RoleStore) Delete(ctx context.Context, code string) error {
	if IsSystemRoleCode(code) {
		return ErrRoleIsSystem
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM roles WHERE code = $1 AND NOT is_system`, code)
	if err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// PermissionStore persists the permission catalogue.
type PermissionStore struct {
	db database.DB
}

func NewPermissionStore(db database.DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// List returns every permission, built-in and custom, ordered by code.
func (s *PermissionStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.Query(ctx,
		`SELECT code, name, category, is_system FROM permissions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Code, &p.Name, &p.Category, &p.IsSystem); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Create inserts a custom permission.
func (s *PermissionStore) Create(ctx context.Context, p Permission) (*Permission, error) {
	if err := ValidateCode(p.Code); err != nil {
		return nil, err
	}

	var created Permission
	err := s.db.QueryRow(ctx,
		`INSERT INTO permissions (code, name, category, is_system)
		 VALUES ($1, $2, $3, false)
		 RETURNING code, name, category, is_system`,
		p.Code, p.Name, p.Category,
	).Scan(&created.Code, &created.Name, &created.Category, &created.IsSystem)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDuplicate, p.Code)
		}
		return nil, fmt.Errorf("creating permission: %w", err)
	}
	return &created, nil
}

// Delete removes a custom permission and strips its code from every role in
// the same transaction.
func (s *PermissionStore) Delete(ctx context.Context, code string) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, q database.Querier) error {
		var isSystem bool
		err := q.QueryRow(ctx,
			`SELECT is_system FROM permissions WHERE code = $1 FOR UPDATE`, code,
		).Scan(&isSystem)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPermissionNotFound
			}
			return fmt.Errorf("loading permission: %w", err)
		}
		if isSystem {
			return ErrPermissionIsSystem
		}

		if _, err := q.Exec(ctx,
			`UPDATE roles SET permissions = permissions - $1::text, updated_at = now()
			 WHERE permissions ? $1::text`, code,
		); err != nil {
			return fmt.Errorf("removing permission from roles: %w", err)
		}

		if _, err := q.Exec(ctx, `DELETE FROM permissions WHERE code = $1`, code); err != nil {
			return fmt.Errorf("deleting permission: %w", err)
		}
		return nil
	})
}
