package repo

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

const taskColumns = `id, name, description, status, context, priority, complexity,
	assigned_user_id, parent_id, dependencies, due_date, version, created_at, updated_at, completed_at`

// graphLockKey identifies the session advisory lock held by dependency-graph
// writers. Any constant works as long as every process uses the same one.
const graphLockKey int64 = 0x7461736b67726170

type TaskRepo struct { // PostgreSQL-backed TaskRepository
	pool *pgxpool.Pool
}

var _ TaskRepository = (*TaskRepo)(nil)

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) FindByID(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return t, &NotFoundError{ID: id}
	}
	return t, r.mapError("find task", err)
}

func (r *TaskRepo) Save(ctx context.Context, t model.Task, expectedVersion int64) (model.Task, error) {
	t = t.Clone()
	sort.Strings(t.Dependencies)
	if expectedVersion == 0 {
		return r.insert(ctx, t)
	}
	return r.update(ctx, t, expectedVersion)
}

func (r *TaskRepo) insert(ctx context.Context, t model.Task) (model.Task, error) {
	saved, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, name, description, status, context, priority, complexity,
		                   assigned_user_id, parent_id, dependencies, due_date,
		                   version, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13, $14)
		RETURNING `+taskColumns,
		t.ID, t.Name, t.Description, string(t.Status), string(t.Context), string(t.Priority), string(t.Complexity),
		t.AssignedUserID, t.ParentID, t.Dependencies, t.DueDate, t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	))
	if err != nil {
		err = r.mapError("insert task", err)
		if errors.Is(err, ErrorConflict) {
			return model.Task{}, r.conflict(ctx, t.ID, 0)
		}
		return model.Task{}, err
	}
	return saved, nil
}

func (r *TaskRepo) update(ctx context.Context, t model.Task, expectedVersion int64) (model.Task, error) {
	saved, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET name = $2, description = $3, status = $4, context = $5, priority = $6, complexity = $7,
		    assigned_user_id = $8, parent_id = $9, dependencies = $10, due_date = $11,
		    version = version + 1, updated_at = $12, completed_at = $13
		WHERE id = $1 AND version = $14
		RETURNING `+taskColumns,
		t.ID, t.Name, t.Description, string(t.Status), string(t.Context), string(t.Priority), string(t.Complexity),
		t.AssignedUserID, t.ParentID, t.Dependencies, t.DueDate, t.UpdatedAt, t.CompletedAt, expectedVersion,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, r.conflict(ctx, t.ID, expectedVersion)
	}
	if err != nil {
		return model.Task{}, r.mapError("update task", err)
	}
	return saved, nil
}

// conflict explains a rejected write: the row is either gone or has moved on.
func (r *TaskRepo) conflict(ctx context.Context, id string, expected int64) error {
	var actual int64
	err := r.pool.QueryRow(ctx, `SELECT version FROM tasks WHERE id = $1`, id).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{ID: id}
	}
	if err != nil {
		return r.mapError("read version", err)
	}
	return &ConflictError{ID: id, Expected: expected, Actual: actual}
}

func (r *TaskRepo) ListDependencyStatuses(ctx context.Context, ids []string) (map[string]model.Status, error) {
	out := make(map[string]model.Status, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT id, status FROM tasks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, r.mapError("list dependency statuses", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, r.mapError("scan dependency status", err)
		}
		out[id] = model.Status(status)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapError("list dependency statuses", err)
	}

	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, &NotFoundError{ID: id}
		}
	}
	return out, nil
}

func (r *TaskRepo) List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR assigned_user_id = $2)
		  AND ($3::text IS NULL OR parent_id = $3)
		  AND ($4::timestamptz IS NULL OR due_date < $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, status, filter.AssigneeID, filter.ParentID, filter.DueBefore, lim)
	if err != nil {
		return nil, r.mapError("list tasks", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, max(limit, 0))
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, r.mapError("scan task", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, r.mapError("list tasks", rows.Err())
}

func (r *TaskRepo) ListEdges(ctx context.Context) ([]model.Edge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, unnest(dependencies) AS depends_on
		FROM tasks
		ORDER BY 1, 2
	`)
	if err != nil {
		return nil, r.mapError("list edges", err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, r.mapError("scan edge", err)
		}
		edges = append(edges, e)
	}
	return edges, r.mapError("list edges", rows.Err())
}

func (r *TaskRepo) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[model.Status]int)}

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return stats, r.mapError("stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, r.mapError("scan stats", err)
		}
		stats.ByStatus[model.Status(status)] = n
		stats.TotalTasks += n
	}
	return stats, r.mapError("stats", rows.Err())
}

func (r *TaskRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, resource_id) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, resourceID)
	return r.mapError("save idempotency key", err)
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE key = $1
	`, key).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrorNotFound
	}
	return id, r.mapError("get idempotency key", err)
}

// LockGraph takes a session-level advisory lock on a dedicated connection, so
// graph writers in every process sharing the database are serialized.
func (r *TaskRepo) LockGraph(ctx context.Context) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, r.mapError("lock graph", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, graphLockKey); err != nil {
		conn.Release()
		return nil, r.mapError("lock graph", err)
	}

	return func() {
		// A failed unlock leaves the lock on a broken session; dropping the
		// connection ends the session and releases it.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, graphLockKey); err != nil {
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

// mapError folds driver errors into the package's error taxonomy.
func (r *TaskRepo) mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return ErrorConflict
		}
		return err
	}

	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return unavailable(op, err)
	case errors.As(err, &connErr), pgconn.Timeout(err), pgconn.SafeToRetry(err):
		return unavailable(op, err)
	}
	return err
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t                                     model.Task
		status, taskCtx, priority, complexity string
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &status, &taskCtx, &priority, &complexity,
		&t.AssignedUserID, &t.ParentID, &t.Dependencies, &t.DueDate, &t.Version, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return model.Task{}, err
	}
	t.Status = model.Status(status)
	t.Context = model.Context(taskCtx)
	t.Priority = model.Priority(priority)
	t.Complexity = model.Complexity(complexity)
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	return t, nil
}
