package service

import (
	"context"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/repo"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	// fetchConcurrency caps parallel FindByID calls when expanding neighbours.
	fetchConcurrency = 8
)

func (s *LifecycleService) GetTask(ctx context.Context, id string) (model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.repo.FindByID(ctx, id)
}

func (s *LifecycleService) ListTasks(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, invalid("status", "unknown value %q", *filter.Status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tasks, err := s.repo.List(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tasks listed", zap.Int("count", len(tasks)))
	return tasks, nil
}

// Dependencies returns the tasks id directly depends on, ordered by id.
func (s *LifecycleService) Dependencies(ctx context.Context, id string) ([]model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.fetchAll(ctx, task.Dependencies)
}

// Dependents returns the tasks that directly depend on id, ordered by id.
func (s *LifecycleService) Dependents(ctx context.Context, id string) ([]model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	// Read from the store: other processes may have added edges to id.
	edges, err := s.repo.ListEdges(ctx)
	if err != nil {
		return nil, err
	}
	var dependents []string
	for _, e := range edges {
		if e.To == id {
			dependents = append(dependents, e.From)
		}
	}
	slices.Sort(dependents)
	return s.fetchAll(ctx, dependents)
}

// Subtasks returns the direct children of parentID, newest first.
func (s *LifecycleService) Subtasks(ctx context.Context, parentID string) ([]model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.repo.FindByID(ctx, parentID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, model.TaskFilter{ParentID: &parentID}, 0)
}

// OverdueTasks returns open tasks whose due date has passed, newest first.
func (s *LifecycleService) OverdueTasks(ctx context.Context) ([]model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	due, err := s.repo.List(ctx, model.TaskFilter{DueBefore: &now}, 0)
	if err != nil {
		return nil, err
	}
	overdue := due[:0]
	for _, t := range due {
		if t.IsOverdue(now) {
			overdue = append(overdue, t)
		}
	}
	return overdue, nil
}

// ActionableTasks returns the user's pending or in-progress tasks whose
// dependencies are all completed.
func (s *LifecycleService) ActionableTasks(ctx context.Context, userID string) ([]model.Task, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	assigned, err := s.repo.List(ctx, model.TaskFilter{AssigneeID: &userID}, 0)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Task, 0, len(assigned))
	seen := make(map[string]struct{})
	var depIDs []string
	for _, t := range assigned {
		if t.Status != model.StatusPending && t.Status != model.StatusInProgress {
			continue
		}
		candidates = append(candidates, t)
		for _, dep := range t.Dependencies {
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				depIDs = append(depIDs, dep)
			}
		}
	}

	statuses := map[string]model.Status{}
	if len(depIDs) > 0 {
		statuses, err = s.repo.ListDependencyStatuses(ctx, depIDs)
		if err != nil {
			return nil, err
		}
	}

	actionable := make([]model.Task, 0, len(candidates))
	for _, t := range candidates {
		ready := true
		for _, dep := range t.Dependencies {
			if statuses[dep] != model.StatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			actionable = append(actionable, t)
		}
	}
	return actionable, nil
}

func (s *LifecycleService) Stats(ctx context.Context) (repo.Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.repo.GetStats(ctx)
}

// fetchAll loads ids concurrently and keeps the input order.
func (s *LifecycleService) fetchAll(ctx context.Context, ids []string) ([]model.Task, error) {
	tasks := make([]model.Task, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			t, err := s.repo.FindByID(gctx, id)
			if err != nil {
				return err
			}
			tasks[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tasks, nil
}
