package organization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/taskboard-hq/taskboard/internal/ids"
	"github.com/taskboard-hq/taskboard/internal/platform/database"
)

// Store handles organization database operations.
type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

var _ Repository = (*Store)(nil)

// Create inserts a new organization.
func (s *Store) Create(ctx context.Context, name string, isPublic bool) (*Organization, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	var o Organization
	err = s.db.QueryRow(ctx,
		`INSERT INTO organizations (name, is_public) VALUES ($1, $2)
		 RETURNING id, name, is_public, created_at`,
		name, isPublic,
	).Scan(&o.ID, &o.Name, &o.IsPublic, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	return &o, nil
}

// Get retrieves an organization by id. Ids that are not UUIDs never match.
func (s *Store) Get(ctx context.Context, id string) (*Organization, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var o Organization
	err := s.db.QueryRow(ctx,
		`SELECT id, name, is_public, created_at FROM organizations WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.Name, &o.IsPublic, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting organization: %w", err)
	}
	return &o, nil
}

// List returns all organizations, oldest first.
func (s *Store) List(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, is_public, created_at FROM organizations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.IsPublic, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// MemoryStore is an in-process Repository for tests and database-less runs.
type MemoryStore struct {
	mu   sync.Mutex
	orgs map[string]Organization
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orgs: make(map[string]Organization)}
}

var _ Repository = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, name string, isPublic bool) (*Organization, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o := Organization{ID: ids.New(), Name: name, IsPublic: isPublic, CreatedAt: time.Now().UTC()}
	m.orgs[o.ID] = o
	return &o, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orgs[ids.Normalize(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
