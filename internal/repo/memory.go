package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

// MemoryRepo is the in-process reference TaskRepository. Records are copied
// on the way in and out, so callers never share state with the store.
type MemoryRepo struct {
	mu    sync.RWMutex
	tasks map[string]model.Task
	keys  map[string]string

	// graphLock is a one-slot semaphore so LockGraph can give up on ctx.
	graphLock chan struct{}
}

var _ TaskRepository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tasks: make(map[string]model.Task),
		keys:  make(map[string]string),

		graphLock: make(chan struct{}, 1),
	}
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (model.Task, error) {
	if err := ctxErr(ctx, "find task"); err != nil {
		return model.Task{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, &NotFoundError{ID: id}
	}
	return t.Clone(), nil
}

func (r *MemoryRepo) Save(ctx context.Context, t model.Task, expectedVersion int64) (model.Task, error) {
	if err := ctxErr(ctx, "save task"); err != nil {
		return model.Task{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, exists := r.tasks[t.ID]
	if expectedVersion == 0 {
		if exists {
			return model.Task{}, &ConflictError{ID: t.ID, Expected: 0, Actual: cur.Version}
		}
		t.Version = 1
	} else {
		if !exists {
			return model.Task{}, &NotFoundError{ID: t.ID}
		}
		if cur.Version != expectedVersion {
			return model.Task{}, &ConflictError{ID: t.ID, Expected: expectedVersion, Actual: cur.Version}
		}
		t.Version = expectedVersion + 1
	}

	stored := t.Clone()
	sort.Strings(stored.Dependencies)
	r.tasks[t.ID] = stored
	return stored.Clone(), nil
}

func (r *MemoryRepo) ListDependencyStatuses(ctx context.Context, ids []string) (map[string]model.Status, error) {
	if err := ctxErr(ctx, "list dependency statuses"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.Status, len(ids))
	for _, id := range ids {
		t, ok := r.tasks[id]
		if !ok {
			return nil, &NotFoundError{ID: id}
		}
		out[id] = t.Status
	}
	return out, nil
}

func (r *MemoryRepo) List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error) {
	if err := ctxErr(ctx, "list tasks"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.AssigneeID != nil && (t.AssignedUserID == nil || *t.AssignedUserID != *filter.AssigneeID) {
			continue
		}
		if filter.ParentID != nil && (t.ParentID == nil || *t.ParentID != *filter.ParentID) {
			continue
		}
		if filter.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*filter.DueBefore)) {
			continue
		}
		tasks = append(tasks, t.Clone())
	}

	// Same order as the SQL store: newest first, id as tie-breaker.
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (r *MemoryRepo) ListEdges(ctx context.Context) ([]model.Edge, error) {
	if err := ctxErr(ctx, "list edges"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var edges []model.Edge
	for id, t := range r.tasks {
		for _, dep := range t.Dependencies {
			edges = append(edges, model.Edge{From: id, To: dep})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges, nil
}

func (r *MemoryRepo) GetStats(ctx context.Context) (Stats, error) {
	if err := ctxErr(ctx, "stats"); err != nil {
		return Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{ByStatus: make(map[model.Status]int)}
	for _, t := range r.tasks {
		stats.ByStatus[t.Status]++
		stats.TotalTasks++
	}
	return stats, nil
}

func (r *MemoryRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID string) error {
	if err := ctxErr(ctx, "save idempotency key"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key]; !ok {
		r.keys[key] = resourceID
	}
	return nil
}

func (r *MemoryRepo) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	if err := ctxErr(ctx, "get idempotency key"); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.keys[key]
	if !ok {
		return "", ErrorNotFound
	}
	return id, nil
}

func (r *MemoryRepo) LockGraph(ctx context.Context) (func(), error) {
	if err := ctxErr(ctx, "lock graph"); err != nil {
		return nil, err
	}
	select {
	case r.graphLock <- struct{}{}:
		return func() { <-r.graphLock }, nil
	case <-ctx.Done():
		return nil, unavailable("lock graph", ctx.Err())
	}
}
