// Package events defines the domain events emitted after committed task
// mutations and the publishers that carry them off-process.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

const (
	TopicTaskCreated       = "task.created"
	TopicStatusChanged     = "task.status_changed"
	TopicTaskCompleted     = "task.completed"
	TopicDependencyAdded   = "task.dependency_added"
	TopicDependencyRemoved = "task.dependency_removed"
	TopicTaskAssigned      = "task.assigned"
	TopicTaskUnassigned    = "task.unassigned"
	TopicTaskUpdated       = "task.updated"
	TopicSubtaskAdded      = "task.subtask_added"
	TopicSubtaskRemoved    = "task.subtask_removed"
)

// ErrPublishFailed marks an event that could not be handed off. It never
// undoes the mutation that produced the event.
var ErrPublishFailed = errors.New("event publish failure")

type TaskCreated struct {
	Task model.Task `json:"task"`
}

type StatusChanged struct {
	TaskID    string       `json:"task_id"`
	OldStatus model.Status `json:"old_status"`
	NewStatus model.Status `json:"new_status"`
	Version   int64        `json:"version"`
	ChangedAt time.Time    `json:"changed_at"`
}

type TaskCompleted struct {
	TaskID      string    `json:"task_id"`
	Name        string    `json:"name"`
	Version     int64     `json:"version"`
	CompletedAt time.Time `json:"completed_at"`
}

type DependencyAdded struct {
	TaskID      string `json:"task_id"`
	DependsOnID string `json:"depends_on_id"`
	Version     int64  `json:"version"`
}

type DependencyRemoved struct {
	TaskID      string `json:"task_id"`
	DependsOnID string `json:"depends_on_id"`
	Version     int64  `json:"version"`
}

type TaskAssigned struct {
	TaskID         string  `json:"task_id"`
	UserID         string  `json:"user_id"`
	PreviousUserID *string `json:"previous_user_id,omitempty"`
	Version        int64   `json:"version"`
}

type TaskUnassigned struct {
	TaskID         string `json:"task_id"`
	PreviousUserID string `json:"previous_user_id"`
	Version        int64  `json:"version"`
}

// TaskUpdated lists the json names of the fields a patch changed.
type TaskUpdated struct {
	TaskID    string    `json:"task_id"`
	Fields    []string  `json:"fields"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SubtaskAdded struct {
	ParentID         string  `json:"parent_id"`
	ChildID          string  `json:"child_id"`
	PreviousParentID *string `json:"previous_parent_id,omitempty"`
	Version          int64   `json:"version"`
}

type SubtaskRemoved struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
	Version  int64  `json:"version"`
}

// Envelope is the wire form of an event. ID lets consumers de-duplicate,
// since delivery is not exactly-once.
type Envelope struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func NewEnvelope(topic string, payload any, at time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
