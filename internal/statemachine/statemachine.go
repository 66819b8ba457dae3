// Package statemachine decides whether a task status transition is legal.
package statemachine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

var (
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrUnresolvedDependencies = errors.New("unresolved dependencies")
)

// completed and cancelled have no entry: they are terminal.
var transitions = map[model.Status]map[model.Status]bool{
	model.StatusPending: {
		model.StatusInProgress: true,
		model.StatusCancelled:  true,
	},
	model.StatusInProgress: {
		model.StatusCompleted: true,
		model.StatusOnHold:    true,
		model.StatusCancelled: true,
	},
	model.StatusOnHold: {
		model.StatusInProgress: true,
		model.StatusCancelled:  true,
	},
}

type TransitionError struct {
	From model.Status
	To   model.Status
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("%s: %q is terminal (requested %q)", ErrInvalidTransition, e.From, e.To)
	}
	return fmt.Sprintf("%s: %q -> %q", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// UnresolvedDependenciesError lists, sorted, the dependencies that are not
// yet completed.
type UnresolvedDependenciesError struct {
	IDs []string
}

func (e *UnresolvedDependenciesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolvedDependencies, strings.Join(e.IDs, ", "))
}

func (e *UnresolvedDependenciesError) Unwrap() error { return ErrUnresolvedDependencies }

// CanTransition consults the transition table only.
func CanTransition(from, to model.Status) bool {
	return transitions[from][to]
}

// AllowedTransitions returns the statuses reachable from `from` in one step,
// in lifecycle order.
func AllowedTransitions(from model.Status) []model.Status {
	var out []model.Status
	for _, s := range model.Statuses {
		if transitions[from][s] {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks from -> to against the transition table. A move into
// completed additionally requires every entry of deps to be completed.
func Validate(from, to model.Status, deps map[string]model.Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	if to != model.StatusCompleted {
		return nil
	}

	var unresolved []string
	for id, status := range deps {
		if status != model.StatusCompleted {
			unresolved = append(unresolved, id)
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return &UnresolvedDependenciesError{IDs: unresolved}
	}
	return nil
}
