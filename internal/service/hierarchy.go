package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/events"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

// AddSubtask makes childID a direct child of parentID, replacing any previous
// parent. The hierarchy stays a forest: a task cannot become the child of its
// own descendant.
func (s *LifecycleService) AddSubtask(ctx context.Context, parentID, childID string) (model.Task, error) {
	if parentID == childID {
		return model.Task{}, invalid("parent_id", "a task cannot be its own parent")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockWriters(ctx)
	if err != nil {
		return model.Task{}, err
	}
	defer unlock()

	child, err := s.repo.FindByID(ctx, childID)
	if err != nil {
		return model.Task{}, err
	}
	parent, err := s.repo.FindByID(ctx, parentID)
	if err != nil {
		return model.Task{}, err
	}
	if child.ParentID != nil && *child.ParentID == parentID {
		return child, nil
	}

	// Walk up from the new parent; meeting the child means a loop.
	seen := map[string]struct{}{parentID: {}}
	for cur := parent.ParentID; cur != nil; {
		if *cur == childID {
			return model.Task{}, invalid("parent_id", "task %s is a descendant of %s", parentID, childID)
		}
		if _, ok := seen[*cur]; ok {
			break
		}
		seen[*cur] = struct{}{}
		up, err := s.repo.FindByID(ctx, *cur)
		if err != nil {
			return model.Task{}, err
		}
		cur = up.ParentID
	}

	previous := child.ParentID
	expected := child.Version
	child.ParentID = &parentID
	child.UpdatedAt = s.now().UTC()
	child.Version = expected + 1

	saved, err := s.repo.Save(ctx, child, expected)
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Info("subtask added", zap.String("parent_id", parentID), zap.String("child_id", childID))
	s.emit(ctx, events.TopicSubtaskAdded, events.SubtaskAdded{
		ParentID:         parentID,
		ChildID:          childID,
		PreviousParentID: previous,
		Version:          saved.Version,
	})
	return saved, nil
}

// RemoveSubtask detaches childID from parentID. A child with a different
// parent, or none, is returned unchanged.
func (s *LifecycleService) RemoveSubtask(ctx context.Context, parentID, childID string) (model.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockWriters(ctx)
	if err != nil {
		return model.Task{}, err
	}
	defer unlock()

	child, err := s.repo.FindByID(ctx, childID)
	if err != nil {
		return model.Task{}, err
	}
	if child.ParentID == nil || *child.ParentID != parentID {
		return child, nil
	}

	expected := child.Version
	child.ParentID = nil
	child.UpdatedAt = s.now().UTC()
	child.Version = expected + 1

	saved, err := s.repo.Save(ctx, child, expected)
	if err != nil {
		return model.Task{}, err
	}

	s.logger.Info("subtask removed", zap.String("parent_id", parentID), zap.String("child_id", childID))
	s.emit(ctx, events.TopicSubtaskRemoved, events.SubtaskRemoved{
		ParentID: parentID,
		ChildID:  childID,
		Version:  saved.Version,
	})
	return saved, nil
}
