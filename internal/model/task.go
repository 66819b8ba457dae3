package model

import (
	"slices"
	"time"
)

type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    *string    `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Context        Context    `json:"context"`
	Priority       Priority   `json:"priority"`
	Complexity     Complexity `json:"complexity"`
	AssignedUserID *string    `json:"assigned_user_id,omitempty"`
	ParentID       *string    `json:"parent_id,omitempty"`
	Dependencies   []string   `json:"dependencies"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with t.
func (t Task) Clone() Task {
	c := t
	c.Dependencies = slices.Clone(t.Dependencies)
	if c.Dependencies == nil {
		c.Dependencies = []string{}
	}
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.AssignedUserID != nil {
		u := *t.AssignedUserID
		c.AssignedUserID = &u
	}
	if t.ParentID != nil {
		p := *t.ParentID
		c.ParentID = &p
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}

// IsOverdue reports whether the due date has passed while the task is still open.
func (t Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && !t.Status.IsTerminal()
}

// DependsOn reports whether id is among the task's direct dependencies.
func (t Task) DependsOn(id string) bool {
	_, found := slices.BinarySearch(t.Dependencies, id)
	return found
}

// CreateTaskInput holds the caller-supplied fields of a new task.
type CreateTaskInput struct {
	Name           string     `json:"name"`
	Description    *string    `json:"description,omitempty"`
	Context        Context    `json:"context"`
	Priority       Priority   `json:"priority"`
	Complexity     Complexity `json:"complexity"`
	AssignedUserID *string    `json:"assigned_user_id,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
}

// TaskPatch carries the editable descriptive fields. Nil fields are left
// unchanged; status, dependencies and assignee have their own operations.
type TaskPatch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Context     *Context    `json:"context,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	Complexity  *Complexity `json:"complexity,omitempty"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
}

// Fields names the JSON fields the patch sets, in declaration order.
func (p TaskPatch) Fields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Context != nil {
		fields = append(fields, "context")
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.Complexity != nil {
		fields = append(fields, "complexity")
	}
	if p.DueDate != nil {
		fields = append(fields, "due_date")
	}
	return fields
}

type TaskFilter struct {
	Status     *Status
	AssigneeID *string
	ParentID   *string
	// DueBefore keeps tasks whose due date is strictly earlier.
	DueBefore *time.Time
}

// Edge is a directed "From depends on To" relation.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}
