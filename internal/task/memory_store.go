package task

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
	mu    sync.Mutex
	tasks map[string]Task
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]Task), now: time.Now}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Insert(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = ids.New()
	}
	now := m.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	m.tasks[t.ID] = *t
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[ids.Normalize(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) CompareAndSwapStatus(_ context.Context, id string, update StatusUpdate) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = ids.Normalize(id)
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != update.From {
		return nil, ErrStatusChanged
	}
	t.Status = update.To
	if update.RejectionReason != nil {
		t.RejectionReason = *update.RejectionReason
	}
	t.UpdatedAt = m.now().UTC()
	m.tasks[id] = t
	return &t, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Task
	for _, t := range m.tasks {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
			continue
		}
		if f.OrganizationID != "" && !ids.Equal(f.OrganizationID, t.OrganizationID) {
			continue
		}
		if f.CreatedBy != "" && !ids.Equal(f.CreatedBy, t.CreatedBy) {
			continue
		}
		out = append(out, t)
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
