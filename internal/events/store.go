package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/taskboard-hq/taskboard/internal/platform/database"
)

// Store persists events to the workflow_events table.
type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

var _ Sink = (*Store)(nil)

// WriteBatch inserts events in a single statement.
func (s *Store) WriteBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting workflow events: %w", err)
	}
	return nil
}

func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(type, resource_type, resource_id, actor_id, organization_id, metadata, occurred_at)"
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		occurred := e.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now().UTC()
		}

		args = append(args, e.Type, e.ResourceType, e.ResourceID, e.ActorID, e.OrganizationID, metaJSON, occurred)
	}

	sql := fmt.Sprintf("INSERT INTO workflow_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListParams filters the event history.
type ListParams struct {
	ResourceType   string
	ResourceID     string
	OrganizationID string
	Limit          int
}

func buildListQuery(p ListParams) (string, []any) {
	var conditions []string
	var args []any

	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("resource_type", p.ResourceType)
	add("resource_id", p.ResourceID)
	add("organization_id", p.OrganizationID)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := p.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	sql := fmt.Sprintf(
		`SELECT id, type, resource_type, resource_id, actor_id, organization_id, metadata, occurred_at
		FROM workflow_events
		%s
		ORDER BY id DESC
		LIMIT $%d`,
		where, len(args),
	)
	return sql, args
}

// List returns the most recent events matching p, newest first.
func (s *Store) List(ctx context.Context, p ListParams) ([]Event, error) {
	sql, args := buildListQuery(p)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing workflow events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.ResourceType, &e.ResourceID, &e.ActorID, &e.OrganizationID, &metaJSON, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning workflow event: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
