package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

func newTask(id string, createdAt time.Time) model.Task {
	return model.Task{
		ID:           id,
		Name:         "Task " + id,
		Status:       model.StatusPending,
		Context:      model.ContextWork,
		Priority:     model.PriorityMedium,
		Complexity:   model.ComplexitySimple,
		Dependencies: []string{},
		Version:      1,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// testRepositoryContract runs the behaviour every TaskRepository must share.
// newRepo must return an empty store.
func testRepositoryContract(t *testing.T, newRepo func(t *testing.T) TaskRepository) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("insert and find", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		saved, err := r.Save(ctx, newTask("t1", base), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.Version)

		got, err := r.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "Task t1", got.Name)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Empty(t, got.Dependencies)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("find missing", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.FindByID(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrorNotFound)

		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "nope", nf.ID)
	})

	t.Run("duplicate insert conflicts", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		_, err := r.Save(ctx, newTask("t1", base), 0)
		require.NoError(t, err)

		_, err = r.Save(ctx, newTask("t1", base), 0)
		assert.ErrorIs(t, err, ErrorConflict)
	})

	t.Run("versioned update", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		_, err := r.Save(ctx, newTask("t1", base), 0)
		require.NoError(t, err)
		_, err = r.Save(ctx, newTask("t2", base), 0)
		require.NoError(t, err)

		task, err := r.FindByID(ctx, "t1")
		require.NoError(t, err)
		task.Dependencies = []string{"t2"}
		task.Version = 2

		saved, err := r.Save(ctx, task, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.Version)
		assert.Equal(t, []string{"t2"}, saved.Dependencies)

		// A second writer still holding version 1 loses.
		_, err = r.Save(ctx, task, 1)
		require.ErrorIs(t, err, ErrorConflict)
		var ce *ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, int64(1), ce.Expected)
		assert.Equal(t, int64(2), ce.Actual)
	})

	t.Run("update missing", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Save(context.Background(), newTask("ghost", base), 3)
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("completed_at round trip", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		task := newTask("t1", base)
		_, err := r.Save(ctx, task, 0)
		require.NoError(t, err)

		done := base.Add(time.Hour)
		task.Status = model.StatusCompleted
		task.CompletedAt = &done
		_, err = r.Save(ctx, task, 1)
		require.NoError(t, err)

		got, err := r.FindByID(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, done.Equal(*got.CompletedAt))
	})

	t.Run("dependency statuses", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		a := newTask("a", base)
		_, err := r.Save(ctx, a, 0)
		require.NoError(t, err)
		_, err = r.Save(ctx, newTask("b", base), 0)
		require.NoError(t, err)

		a.Status = model.StatusInProgress
		_, err = r.Save(ctx, a, 1)
		require.NoError(t, err)

		got, err := r.ListDependencyStatuses(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, map[string]model.Status{"a": model.StatusInProgress, "b": model.StatusPending}, got)

		empty, err := r.ListDependencyStatuses(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)

		_, err = r.ListDependencyStatuses(ctx, []string{"a", "missing"})
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("list with filter and limit", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		user := "u-1"
		for i := 0; i < 5; i++ {
			task := newTask(fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Minute))
			if i%2 == 0 {
				task.AssignedUserID = &user
			}
			_, err := r.Save(ctx, task, 0)
			require.NoError(t, err)
		}

		all, err := r.List(ctx, model.TaskFilter{}, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, "t4", all[0].ID, "newest first")

		limited, err := r.List(ctx, model.TaskFilter{}, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		mine, err := r.List(ctx, model.TaskFilter{AssigneeID: &user}, 10)
		require.NoError(t, err)
		assert.Len(t, mine, 3)

		completed := model.StatusCompleted
		none, err := r.List(ctx, model.TaskFilter{Status: &completed}, 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("edges and stats", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		for _, id := range []string{"a", "b", "c"} {
			_, err := r.Save(ctx, newTask(id, base), 0)
			require.NoError(t, err)
		}
		a, err := r.FindByID(ctx, "a")
		require.NoError(t, err)
		a.Dependencies = []string{"c", "b"}
		_, err = r.Save(ctx, a, a.Version)
		require.NoError(t, err)

		edges, err := r.ListEdges(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.Edge{{From: "a", To: "b"}, {From: "a", To: "c"}}, edges)

		stats, err := r.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalTasks)
		assert.Equal(t, 3, stats.ByStatus[model.StatusPending])
	})

	t.Run("idempotency keys", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		_, err := r.Save(ctx, newTask("t1", base), 0)
		require.NoError(t, err)
		_, err = r.Save(ctx, newTask("t2", base), 0)
		require.NoError(t, err)

		_, err = r.GetIdempotencyKey(ctx, "k")
		assert.ErrorIs(t, err, ErrorNotFound)

		require.NoError(t, r.SaveIdempotencyKey(ctx, "k", "t1"))
		require.NoError(t, r.SaveIdempotencyKey(ctx, "k", "t2"), "first writer wins silently")

		id, err := r.GetIdempotencyKey(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "t1", id)
	})

	t.Run("due date and parent round trip", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		_, err := r.Save(ctx, newTask("parent", base), 0)
		require.NoError(t, err)

		due := base.Add(48 * time.Hour)
		child := newTask("child", base.Add(time.Minute))
		parentID := "parent"
		child.ParentID = &parentID
		child.DueDate = &due
		_, err = r.Save(ctx, child, 0)
		require.NoError(t, err)

		got, err := r.FindByID(ctx, "child")
		require.NoError(t, err)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, "parent", *got.ParentID)
		require.NotNil(t, got.DueDate)
		assert.True(t, due.Equal(*got.DueDate))

		got.ParentID = nil
		got.DueDate = nil
		_, err = r.Save(ctx, got, got.Version)
		require.NoError(t, err)

		cleared, err := r.FindByID(ctx, "child")
		require.NoError(t, err)
		assert.Nil(t, cleared.ParentID)
		assert.Nil(t, cleared.DueDate)
	})

	t.Run("list by parent and due date", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		_, err := r.Save(ctx, newTask("p", base), 0)
		require.NoError(t, err)

		parentID := "p"
		tests := []struct {
			id     string
			due    *time.Time
			parent *string
		}{
			{id: "early", due: ptrTime(base.Add(time.Hour)), parent: &parentID},
			{id: "late", due: ptrTime(base.Add(72 * time.Hour))},
			{id: "undated", parent: &parentID},
		}
		for i, tt := range tests {
			task := newTask(tt.id, base.Add(time.Duration(i+1)*time.Minute))
			task.DueDate = tt.due
			task.ParentID = tt.parent
			_, err := r.Save(ctx, task, 0)
			require.NoError(t, err)
		}

		children, err := r.List(ctx, model.TaskFilter{ParentID: &parentID}, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"undated", "early"}, taskIDs(children))

		cutoff := base.Add(24 * time.Hour)
		due, err := r.List(ctx, model.TaskFilter{DueBefore: &cutoff}, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"early"}, taskIDs(due))

		exact := base.Add(time.Hour)
		none, err := r.List(ctx, model.TaskFilter{DueBefore: &exact}, 0)
		require.NoError(t, err)
		assert.Empty(t, none, "due-before is strict")
	})

	t.Run("graph lock is exclusive", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		unlock, err := r.LockGraph(ctx)
		require.NoError(t, err)

		acquired := make(chan func(), 1)
		go func() {
			second, err := r.LockGraph(ctx)
			if err != nil {
				close(acquired)
				return
			}
			acquired <- second
		}()

		assert.Never(t, func() bool { return len(acquired) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
		unlock()

		select {
		case second, ok := <-acquired:
			require.True(t, ok, "second locker failed")
			second()
		case <-time.After(5 * time.Second):
			t.Fatal("second locker never acquired the graph lock")
		}
	})

	t.Run("graph lock gives up on context", func(t *testing.T) {
		r := newRepo(t)
		unlock, err := r.LockGraph(context.Background())
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err = r.LockGraph(ctx)
		assert.ErrorIs(t, err, ErrorStoreUnavailable)
	})

	t.Run("cancelled context is store unavailable", func(t *testing.T) {
		r := newRepo(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.FindByID(ctx, "t1")
		assert.ErrorIs(t, err, ErrorStoreUnavailable)
		_, err = r.Save(ctx, newTask("t1", base), 0)
		assert.ErrorIs(t, err, ErrorStoreUnavailable)
	})
}

func ptrTime(t time.Time) *time.Time { return &t }

func taskIDs(tasks []model.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
