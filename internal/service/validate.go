package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

var (
	ErrValidation = errors.New("validation error")
)

const (
	maxNameLength        = 200
	maxDescriptionLength = 5000
	maxUserIDLength      = 100
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (s *LifecycleService) validate(in model.CreateTaskInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalid("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return invalid("name", "must be at most %d characters", maxNameLength)
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxDescriptionLength {
		return invalid("description", "must be at most %d characters", maxDescriptionLength)
	}
	if !in.Context.IsValid() {
		return invalid("context", "unknown value %q", in.Context)
	}
	if !in.Priority.IsValid() {
		return invalid("priority", "unknown value %q", in.Priority)
	}
	if !in.Complexity.IsValid() {
		return invalid("complexity", "unknown value %q", in.Complexity)
	}
	if in.AssignedUserID != nil {
		return validateUserID(*in.AssignedUserID)
	}
	return nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("user_id", "must not be empty")
	}
	if utf8.RuneCountInString(userID) > maxUserIDLength {
		return invalid("user_id", "must be at most %d characters", maxUserIDLength)
	}
	return nil
}
