package application_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/taskboard-hq/taskboard/internal/application"
	"github.com/taskboard-hq/taskboard/internal/platform/database"
	"github.com/taskboard-hq/taskboard/internal/task"
)

func setupTestDB(t *testing.T) (*database.Pool, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("taskboard_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = database.RunMigrations(connStr, "file://../../migrations")
	require.NoError(t, err)

	pool, err := database.Connect(ctx, connStr, 10)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func insertPublishedTask(t *testing.T, pool *database.Pool) *task.Task {
	t.Helper()
	tk := &task.Task{
		OrganizationID: "org-1",
		CreatedBy:      "creator",
		Title:          "Paint fence",
		Status:         task.StatusPublished,
		Visibility:     task.VisibilityExternal,
	}
	require.NoError(t, task.NewPGStore(pool).Insert(context.Background(), tk))
	return tk
}

func TestPGStore_OneActivePerApplicant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := application.NewPGStore(pool)
	ctx := context.Background()
	tk := insertPublishedTask(t, pool)

	first := &application.Application{TaskID: tk.ID, ApplicantID: "alice", Status: application.StatusSubmitted}
	require.NoError(t, store.Insert(ctx, first))
	require.NotEmpty(t, first.ID)

	active, err := store.ExistsActive(ctx, "alice", tk.ID)
	require.NoError(t, err)
	assert.True(t, active)

	err = store.Insert(ctx, &application.Application{TaskID: tk.ID, ApplicantID: "alice", Status: application.StatusSubmitted})
	assert.ErrorIs(t, err, application.ErrDuplicate)

	_, err = store.CompareAndSwapStatus(ctx, first.ID, application.StatusSubmitted, application.StatusWithdrawn)
	require.NoError(t, err)

	active, err = store.ExistsActive(ctx, "alice", tk.ID)
	require.NoError(t, err)
	assert.False(t, active)

	second := &application.Application{TaskID: tk.ID, ApplicantID: "alice", Status: application.StatusSubmitted}
	require.NoError(t, store.Insert(ctx, second))

	mine, err := store.List(ctx, application.Filter{ApplicantID: "alice"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	withdrawn, err := store.List(ctx, application.Filter{TaskID: tk.ID, Statuses: []application.Status{application.StatusWithdrawn}})
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	assert.Equal(t, first.ID, withdrawn[0].ID)

	none, err := store.List(ctx, application.Filter{TaskID: "not-a-uuid"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPGStore_CAS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := application.NewPGStore(pool)
	ctx := context.Background()
	tk := insertPublishedTask(t, pool)

	app := &application.Application{TaskID: tk.ID, ApplicantID: "alice", Status: application.StatusOfferSent, Note: "hi"}
	require.NoError(t, store.Insert(ctx, app))

	got, err := store.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Note)

	_, err = store.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, application.ErrNotFound)
	_, err = store.CompareAndSwapStatus(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", application.StatusOfferSent, application.StatusOfferAccepted)
	assert.ErrorIs(t, err, application.ErrNotFound)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := application.StatusOfferAccepted
			if i%2 == 1 {
				to = application.StatusOfferDeclined
			}
			_, err := store.CompareAndSwapStatus(ctx, app.ID, application.StatusOfferSent, to)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, application.ErrStatusChanged)
		}
	}
	assert.Equal(t, 1, wins)
}
