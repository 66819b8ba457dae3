package repo

import (
	"context"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

// TaskRepository is the durable store of task records with optimistic versioning.
type TaskRepository interface {
	FindByID(ctx context.Context, id string) (model.Task, error)
	// Save inserts when expectedVersion is zero and otherwise replaces the
	// record only if its stored version still equals expectedVersion. The
	// returned task carries the new version.
	Save(ctx context.Context, t model.Task, expectedVersion int64) (model.Task, error)
	// ListDependencyStatuses fails with NotFound if any id is unknown.
	ListDependencyStatuses(ctx context.Context, ids []string) (map[string]model.Status, error)
	List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error)
	ListEdges(ctx context.Context) ([]model.Edge, error)
	GetStats(ctx context.Context) (Stats, error)
	SaveIdempotencyKey(ctx context.Context, key string, resourceID string) error
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
	// LockGraph blocks until the caller is the only graph writer among all
	// processes sharing this store. The returned func releases the lock.
	LockGraph(ctx context.Context) (unlock func(), err error)
}

type Stats struct {
	ByStatus   map[model.Status]int `json:"by_status"`
	TotalTasks int                  `json:"total_tasks"`
}
