package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_IsValidAndTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		valid    bool
		terminal bool
	}{
		{StatusPending, true, false},
		{StatusInProgress, true, false},
		{StatusOnHold, true, false},
		{StatusCompleted, true, true},
		{StatusCancelled, true, true},
		{Status("processing"), false, false},
		{Status(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestEnums_IsValid(t *testing.T) {
	assert.True(t, ContextResearch.IsValid())
	assert.False(t, Context("leisure").IsValid())
	assert.True(t, PriorityWish.IsValid())
	assert.False(t, Priority("urgent").IsValid())
	assert.True(t, ComplexityVeryComplex.IsValid())
	assert.False(t, Complexity("very-complex").IsValid())
}

func TestTask_CloneIsIndependent(t *testing.T) {
	desc := "write docs"
	user := "u-1"
	done := time.Now()
	parent := "tsk-0"
	orig := Task{
		ID:             "tsk-1",
		Description:    &desc,
		AssignedUserID: &user,
		ParentID:       &parent,
		Dependencies:   []string{"tsk-2"},
		DueDate:        &done,
		CompletedAt:    &done,
	}

	c := orig.Clone()
	c.Dependencies[0] = "tsk-9"
	*c.Description = "changed"
	*c.AssignedUserID = "u-2"
	*c.ParentID = "tsk-9"
	*c.DueDate = done.Add(time.Hour)

	assert.Equal(t, "tsk-2", orig.Dependencies[0])
	assert.Equal(t, "write docs", *orig.Description)
	assert.Equal(t, "u-1", *orig.AssignedUserID)
	assert.Equal(t, "tsk-0", *orig.ParentID)
	assert.True(t, done.Equal(*orig.DueDate))
}

func TestTask_CloneNormalizesNilDependencies(t *testing.T) {
	c := Task{ID: "tsk-1"}.Clone()
	assert.NotNil(t, c.Dependencies)
	assert.Empty(t, c.Dependencies)
}

func TestTask_DependsOn(t *testing.T) {
	task := Task{Dependencies: []string{"a", "c", "e"}}
	assert.True(t, task.DependsOn("c"))
	assert.False(t, task.DependsOn("b"))
}

func TestTask_IsOverdue(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"no due date", Task{Status: StatusPending}, false},
		{"due in the future", Task{Status: StatusPending, DueDate: &future}, false},
		{"past due and open", Task{Status: StatusInProgress, DueDate: &past}, true},
		{"past due but completed", Task{Status: StatusCompleted, DueDate: &past}, false},
		{"past due but cancelled", Task{Status: StatusCancelled, DueDate: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.IsOverdue(now))
		})
	}
}

func TestTaskPatch_Fields(t *testing.T) {
	name := "renamed"
	prio := PriorityLow
	due := time.Now()

	assert.Empty(t, TaskPatch{}.Fields())
	assert.Equal(t, []string{"name", "priority", "due_date"}, TaskPatch{Name: &name, Priority: &prio, DueDate: &due}.Fields())
}
