package application

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/taskboard-hq/taskboard/internal/ids"
)

// MemoryStore is an in-process Store for tests and database-less runs.
type MemoryStore struct {
	mu   sync.Mutex
	apps map[string]Application
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{apps: make(map[string]Application), now: time.Now}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) activeLocked(applicantID, taskID string) bool {
	for _, a := range m.apps {
		if a.Status != StatusWithdrawn && ids.Equal(a.ApplicantID, applicantID) && ids.Equal(a.TaskID, taskID) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Insert(_ context.Context, a *Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeLocked(a.ApplicantID, a.TaskID) {
		return ErrDuplicate
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	now := m.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	m.apps[a.ID] = *a
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.apps[ids.Normalize(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) ExistsActive(_ context.Context, applicantID, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(applicantID, taskID), nil
}

func (m *MemoryStore) CompareAndSwapStatus(_ context.Context, id string, from, to Status) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = ids.Normalize(id)
	a, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}
	a.Status = to
	a.UpdatedAt = m.now().UTC()
	m.apps[id] = a
	return &a, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Application
	for _, a := range m.apps {
		if f.TaskID != "" && !ids.Equal(f.TaskID, a.TaskID) {
			continue
		}
		if f.ApplicantID != "" && !ids.Equal(f.ApplicantID, a.ApplicantID) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
