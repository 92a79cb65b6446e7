package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/taskboard-hq/taskboard/internal/platform/database"
)

// PGStore is the Postgres Store. The one-active-application rule is backed
// by the applications_one_active_idx partial unique index.
type PGStore struct {
	db database.Querier
}

func NewPGStore(db database.Querier) *PGStore {
	return &PGStore{db: db}
}

var _ Store = (*PGStore)(nil)

const applicationColumns = `id, task_id, applicant_id, status, note, created_at, updated_at`

func scanApplication(row pgx.Row) (*Application, error) {
	var a Application
	if err := row.Scan(&a.ID, &a.TaskID, &a.ApplicantID, &a.Status, &a.Note, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) Insert(ctx context.Context, a *Application) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO applications (task_id, applicant_id, status, note)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		a.TaskID, a.ApplicantID, a.Status, a.Note,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting application: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	a, err := scanApplication(s.db.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting application: %w", err)
	}
	return a, nil
}

func (s *PGStore) ExistsActive(ctx context.Context, applicantID, taskID string) (bool, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM applications
		   WHERE applicant_id = $1 AND task_id = $2 AND status <> 'withdrawn'
		 )`,
		applicantID, taskID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking active application: %w", err)
	}
	return exists, nil
}

func (s *PGStore) CompareAndSwapStatus(ctx context.Context, id string, from, to Status) (*Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	a, err := scanApplication(s.db.QueryRow(ctx,
		`UPDATE applications SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+applicationColumns,
		id, from, to,
	))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("updating application status: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking application: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrStatusChanged
}

func buildListQuery(f Filter) (string, []any) {
	var conditions []string
	var args []any

	if f.TaskID != "" {
		args = append(args, f.TaskID)
		conditions = append(conditions, fmt.Sprintf("task_id = $%d", len(args)))
	}
	if f.ApplicantID != "" {
		args = append(args, f.ApplicantID)
		conditions = append(conditions, fmt.Sprintf("applicant_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
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

	return fmt.Sprintf("SELECT %s FROM applications%s ORDER BY created_at DESC, id LIMIT $%d",
		applicationColumns, where, len(args)), args
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Application, error) {
	if f.TaskID != "" {
		if _, err := uuid.Parse(f.TaskID); err != nil {
			return nil, nil
		}
	}
	sql, args := buildListQuery(f)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
