// Package service orchestrates task mutations: it loads state from the
// repository, validates against the dependency graph and the status state
// machine, persists with optimistic versioning and, only after a successful
// commit, hands a domain event to the emitter.
package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/events"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/graph"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/idgen"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/repo"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/statemachine"
)

// EventEmitter accepts events for best-effort delivery. Implementations must
// not block the caller for long; a returned error is logged and dropped.
type EventEmitter interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type Option func(*LifecycleService)

// WithStoreTimeout bounds every operation's repository work. On expiry the
// operation fails with repo.ErrorStoreUnavailable.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *LifecycleService) { s.storeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *LifecycleService) { s.now = now }
}

func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *LifecycleService) { s.newID = gen }
}

type LifecycleService struct {
	repo    repo.TaskRepository
	emitter EventEmitter
	logger  *zap.Logger

	// graphMu and the repository's graph lock together make one writer for
	// the dependency graph and the parent hierarchy across every process
	// sharing the store. They are held across reload, check and persist so
	// that two opposing edges cannot both pass the cycle check.
	graphMu sync.Mutex
	// graph is the graph as of the last reload. Every mutation reloads it
	// from the store under the writer lock.
	graph atomic.Pointer[graph.Graph]

	storeTimeout time.Duration
	now          func() time.Time
	newID        func() (string, error)
}

// NewLifecycleService loads the dependency graph from the repository and
// refuses to start on a corrupted (cyclic) graph.
func NewLifecycleService(ctx context.Context, r repo.TaskRepository, emitter EventEmitter, logger *zap.Logger, opts ...Option) (*LifecycleService, error) {
	s := &LifecycleService{
		repo:    r,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
		newID:   idgen.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.VerifyGraph(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LifecycleService) CreateTask(ctx context.Context, in model.CreateTaskInput, idempKey string) (model.Task, error) {
	if err := s.validate(in); err != nil {
		return model.Task{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if idempKey != "" { // a repeated key returns the task created the first time
		existingID, err := s.repo.GetIdempotencyKey(ctx, idempKey)
		switch {
		case err == nil:
			return s.repo.FindByID(ctx, existingID)
		case !errors.Is(err, repo.ErrorNotFound):
			return model.Task{}, err
		}
	}

	id, err := s.newID()
	if err != nil {
		return model.Task{}, err
	}
	now := s.now().UTC()
	task := model.Task{
		ID:             id,
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Status:         model.StatusPending,
		Context:        in.Context,
		Priority:       in.Priority,
		Complexity:     in.Complexity,
		AssignedUserID: in.AssignedUserID,
		Dependencies:   []string{},
		DueDate:        utcPtr(in.DueDate),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	saved, err := s.repo.Save(ctx, task, 0)
	if err != nil {
		return model.Task{}, err
	}

	if idempKey != "" {
		if err := s.repo.SaveIdempotencyKey(ctx, idempKey, saved.ID); err != nil {
			s.logger.Warn("failed to record idempotency key", zap.String("task_id", saved.ID), zap.Error(err))
		}
	}

	s.logger.Info("task created", zap.String("task_id", saved.ID))
	s.emit(ctx, events.TopicTaskCreated, events.TaskCreated{Task: saved})
	return saved, nil
}

func (s *LifecycleService) UpdateStatus(ctx context.Context, id string, newStatus model.Status, expectedVersion int64) (model.Task, error) {
	if !newStatus.IsValid() {
		return model.Task{}, invalid("status", "unknown value %q", newStatus)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if task.Version != expectedVersion {
		return model.Task{}, &repo.ConflictError{ID: id, Expected: expectedVersion, Actual: task.Version}
	}

	var deps map[string]model.Status
	if newStatus == model.StatusCompleted && len(task.Dependencies) > 0 {
		deps, err = s.repo.ListDependencyStatuses(ctx, task.Dependencies)
		if err != nil {
			return model.Task{}, err
		}
	}
	if err := statemachine.Validate(task.Status, newStatus, deps); err != nil {
		return model.Task{}, err
	}

	oldStatus := task.Status
	now := s.now().UTC()
	task.Status = newStatus
	task.UpdatedAt = now
	task.CompletedAt = nil
	if newStatus == model.StatusCompleted {
		task.CompletedAt = &now
	}
	task.Version = expectedVersion + 1

	saved, err := s.repo.Save(ctx, task, expectedVersion)
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task status changed",
		zap.String("task_id", id),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)),
		zap.Int64("version", saved.Version),
	)
	s.emit(ctx, events.TopicStatusChanged, events.StatusChanged{
		TaskID:    id,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Version:   saved.Version,
		ChangedAt: now,
	})
	if newStatus == model.StatusCompleted {
		s.emit(ctx, events.TopicTaskCompleted, events.TaskCompleted{
			TaskID:      id,
			Name:        saved.Name,
			Version:     saved.Version,
			CompletedAt: now,
		})
	}
	return saved, nil
}

// UpdateTask applies the set fields of patch and re-validates the task as a
// whole, so a patch can never leave an unknown enum value or an empty name.
func (s *LifecycleService) UpdateTask(ctx context.Context, id string, patch model.TaskPatch, expectedVersion int64) (model.Task, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return model.Task{}, invalid("patch", "must set at least one field")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if task.Version != expectedVersion {
		return model.Task{}, &repo.ConflictError{ID: id, Expected: expectedVersion, Actual: task.Version}
	}

	if patch.Name != nil {
		task.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		task.Description = patch.Description
	}
	if patch.Context != nil {
		task.Context = *patch.Context
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Complexity != nil {
		task.Complexity = *patch.Complexity
	}
	if patch.DueDate != nil {
		task.DueDate = utcPtr(patch.DueDate)
	}
	err = s.validate(model.CreateTaskInput{
		Name:           task.Name,
		Description:    task.Description,
		Context:        task.Context,
		Priority:       task.Priority,
		Complexity:     task.Complexity,
		AssignedUserID: task.AssignedUserID,
	})
	if err != nil {
		return model.Task{}, err
	}

	now := s.now().UTC()
	task.UpdatedAt = now
	task.Version = expectedVersion + 1

	saved, err := s.repo.Save(ctx, task, expectedVersion)
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task updated", zap.String("task_id", id), zap.Strings("fields", fields))
	s.emit(ctx, events.TopicTaskUpdated, events.TaskUpdated{
		TaskID:    id,
		Fields:    fields,
		Version:   saved.Version,
		UpdatedAt: now,
	})
	return saved, nil
}

// AddDependency records that taskID depends on dependsOnID. Adding an edge
// that already exists returns the task unchanged.
func (s *LifecycleService) AddDependency(ctx context.Context, taskID, dependsOnID string) (model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockWriters(ctx)
	if err != nil {
		return model.Task{}, err
	}
	defer unlock()

	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if _, err := s.repo.FindByID(ctx, dependsOnID); err != nil {
		return model.Task{}, err
	}
	if task.DependsOn(dependsOnID) {
		return task, nil
	}

	g, err := s.loadGraph(ctx)
	if err != nil {
		return model.Task{}, err
	}
	if err := g.AddEdge(taskID, dependsOnID); err != nil {
		s.logger.Info("dependency rejected",
			zap.String("task_id", taskID),
			zap.String("depends_on_id", dependsOnID),
			zap.Error(err),
		)
		return model.Task{}, err
	}

	expected := task.Version
	task.Dependencies = insertSorted(task.Dependencies, dependsOnID)
	task.UpdatedAt = s.now().UTC()
	task.Version = expected + 1

	saved, err := s.repo.Save(ctx, task, expected)
	if err != nil {
		g.RemoveEdge(taskID, dependsOnID)
		return model.Task{}, err
	}

	s.logger.Info("dependency added", zap.String("task_id", taskID), zap.String("depends_on_id", dependsOnID))
	s.emit(ctx, events.TopicDependencyAdded, events.DependencyAdded{
		TaskID:      taskID,
		DependsOnID: dependsOnID,
		Version:     saved.Version,
	})
	return saved, nil
}

// RemoveDependency is idempotent: an absent edge returns the task unchanged,
// without a version bump or an event.
func (s *LifecycleService) RemoveDependency(ctx context.Context, taskID, dependsOnID string) (model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockWriters(ctx)
	if err != nil {
		return model.Task{}, err
	}
	defer unlock()

	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if !task.DependsOn(dependsOnID) {
		return task, nil
	}

	expected := task.Version
	task.Dependencies = slices.DeleteFunc(task.Dependencies, func(id string) bool { return id == dependsOnID })
	task.UpdatedAt = s.now().UTC()
	task.Version = expected + 1

	saved, err := s.repo.Save(ctx, task, expected)
	if err != nil {
		return model.Task{}, err
	}
	s.graph.Load().RemoveEdge(taskID, dependsOnID)

	s.logger.Info("dependency removed", zap.String("task_id", taskID), zap.String("depends_on_id", dependsOnID))
	s.emit(ctx, events.TopicDependencyRemoved, events.DependencyRemoved{
		TaskID:      taskID,
		DependsOnID: dependsOnID,
		Version:     saved.Version,
	})
	return saved, nil
}

// AssignUser sets the single assignee, replacing any previous one.
func (s *LifecycleService) AssignUser(ctx context.Context, taskID, userID string) (model.Task, error) {
	if err := validateUserID(userID); err != nil {
		return model.Task{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}

	previous := task.AssignedUserID
	expected := task.Version
	task.AssignedUserID = &userID
	task.UpdatedAt = s.now().UTC()
	task.Version = expected + 1

	saved, err := s.repo.Save(ctx, task, expected)
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task assigned", zap.String("task_id", taskID), zap.String("user_id", userID))
	s.emit(ctx, events.TopicTaskAssigned, events.TaskAssigned{
		TaskID:         taskID,
		UserID:         userID,
		PreviousUserID: previous,
		Version:        saved.Version,
	})
	return saved, nil
}

// UnassignUser clears the assignee. An unassigned task is returned unchanged.
func (s *LifecycleService) UnassignUser(ctx context.Context, taskID string) (model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.AssignedUserID == nil {
		return task, nil
	}

	previous := *task.AssignedUserID
	expected := task.Version
	task.AssignedUserID = nil
	task.UpdatedAt = s.now().UTC()
	task.Version = expected + 1

	saved, err := s.repo.Save(ctx, task, expected)
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task unassigned", zap.String("task_id", taskID), zap.String("previous_user_id", previous))
	s.emit(ctx, events.TopicTaskUnassigned, events.TaskUnassigned{
		TaskID:         taskID,
		PreviousUserID: previous,
		Version:        saved.Version,
	})
	return saved, nil
}

// VerifyGraph reloads every edge from the repository and swaps in the fresh
// graph. A cycle in stored data fails with graph.ErrGraphCorrupted and keeps
// the current graph.
func (s *LifecycleService) VerifyGraph(ctx context.Context) error {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.loadGraph(ctx)
	return err
}

// lockWriters makes the caller the only graph writer in this process and
// then among all processes sharing the store.
func (s *LifecycleService) lockWriters(ctx context.Context) (func(), error) {
	s.graphMu.Lock()
	unlock, err := s.repo.LockGraph(ctx)
	if err != nil {
		s.graphMu.Unlock()
		return nil, err
	}
	return func() {
		unlock()
		s.graphMu.Unlock()
	}, nil
}

// loadGraph builds the graph from the stored edges. Another process may have
// committed edges since the last load, so callers must hold graphMu.
func (s *LifecycleService) loadGraph(ctx context.Context) (*graph.Graph, error) {
	edges, err := s.repo.ListEdges(ctx)
	if err != nil {
		return nil, err
	}
	g, err := graph.Load(edges)
	if err != nil {
		s.logger.Error("dependency graph corrupted", zap.Error(err))
		return nil, err
	}
	s.graph.Store(g)
	s.logger.Debug("dependency graph loaded", zap.Int("edges", g.Len()))
	return g, nil
}

// emit runs strictly after a successful commit. Failures are logged, never returned.
func (s *LifecycleService) emit(ctx context.Context, topic string, payload any) {
	if err := s.emitter.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *LifecycleService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout > 0 {
		return context.WithTimeout(ctx, s.storeTimeout)
	}
	return context.WithCancel(ctx)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func insertSorted(ids []string, id string) []string {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}
