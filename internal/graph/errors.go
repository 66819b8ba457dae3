package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSelfDependency = errors.New("self dependency")
	ErrCycleDetected  = errors.New("cycle detected")
	ErrGraphCorrupted = errors.New("dependency graph corrupted")
)

// GraphError describes a rejected edge or a broken loaded graph.
// Path holds the offending cycle, first and last element equal.
type GraphError struct {
	Kind error
	From string
	To   string
	Path []string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case errors.Is(e.Kind, ErrSelfDependency):
		return fmt.Sprintf("%s: task %s cannot depend on itself", e.Kind, e.From)
	case len(e.Path) > 0:
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Path, " -> "))
	default:
		return e.Kind.Error()
	}
}

func (e *GraphError) Unwrap() error { return e.Kind }

func selfDependency(id string) error {
	return &GraphError{Kind: ErrSelfDependency, From: id, To: id, Path: []string{id, id}}
}

func cycleDetected(from, to string, path []string) error {
	return &GraphError{Kind: ErrCycleDetected, From: from, To: to, Path: path}
}

func corrupted(path []string) error {
	e := &GraphError{Kind: ErrGraphCorrupted, Path: path}
	if len(path) > 1 {
		e.From, e.To = path[0], path[1]
	}
	return e
}
