package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery(t *testing.T) {
	sql, args := buildListQuery(Filter{
		TaskID:   "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Statuses: []Status{StatusSubmitted, StatusShortlisted},
		Limit:    5,
	})
	assert.Contains(t, sql, "WHERE task_id = $1 AND status = ANY($2)")
	assert.Contains(t, sql, "LIMIT $3")
	assert.Equal(t, []any{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", []string{"submitted", "shortlisted"}, 5}, args)

	sql, args = buildListQuery(Filter{})
	assert.NotContains(t, sql, "WHERE")
	assert.Equal(t, []any{100}, args)
}
