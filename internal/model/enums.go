package model

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Context string

const (
	ContextWork        Context = "work"
	ContextPersonal    Context = "personal"
	ContextLearning    Context = "learning"
	ContextMaintenance Context = "maintenance"
	ContextResearch    Context = "research"
)

func (c Context) IsValid() bool {
	switch c {
	case ContextWork, ContextPersonal, ContextLearning, ContextMaintenance, ContextResearch:
		return true
	}
	return false
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityWish     Priority = "wish"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityWish:
		return true
	}
	return false
}

type Complexity string

const (
	ComplexityTrivial     Complexity = "trivial"
	ComplexitySimple      Complexity = "simple"
	ComplexityMedium      Complexity = "medium"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

func (c Complexity) IsValid() bool {
	switch c {
	case ComplexityTrivial, ComplexitySimple, ComplexityMedium, ComplexityComplex, ComplexityVeryComplex:
		return true
	}
	return false
}
