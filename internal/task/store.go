package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/taskboard-hq/taskboard/internal/platform/database"
)

// PGStore is the Postgres Store.
type PGStore struct {
	db database.Querier
}

func NewPGStore(db database.Querier) *PGStore {
	return &PGStore{db: db}
}

var _ Store = (*PGStore)(nil)

const taskColumns = `id, organization_id, created_by, title, description, status, visibility, rejection_reason, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.OrganizationID, &t.CreatedBy, &t.Title, &t.Description,
		&t.Status, &t.Visibility, &t.RejectionReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Insert writes a new task and fills in its id and timestamps.
func (s *PGStore) Insert(ctx context.Context, t *Task) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO tasks (organization_id, created_by, title, description, status, visibility)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		t.OrganizationID, t.CreatedBy, t.Title, t.Description, t.Status, t.Visibility,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	t, err := scanTask(s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// CompareAndSwapStatus moves the task to update.To only while its stored
// status is still update.From.
func (s *PGStore) CompareAndSwapStatus(ctx context.Context, id string, update StatusUpdate) (*Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	t, err := scanTask(s.db.QueryRow(ctx,
		`UPDATE tasks
		 SET status = $3, rejection_reason = COALESCE($4, rejection_reason), updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+taskColumns,
		id, update.From, update.To, update.RejectionReason,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating task status: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking task: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrStatusChanged
}

func buildListQuery(f Filter) (string, []any) {
	var conditions []string
	var args []any

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.OrganizationID != "" {
		args = append(args, f.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if f.CreatedBy != "" {
		args = append(args, f.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	sql := fmt.Sprintf("SELECT %s FROM tasks%s ORDER BY created_at DESC, id LIMIT $%d", taskColumns, where, len(args))
	return sql, args
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Task, error) {
	sql, args := buildListQuery(f)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
