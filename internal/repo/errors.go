package repo

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrorNotFound         = errors.New("not found")
	ErrorConflict         = errors.New("conflict")
	ErrorStoreUnavailable = errors.New("store unavailable")
)

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("task %s: %s", e.ID, ErrorNotFound) }

func (e *NotFoundError) Unwrap() error { return ErrorNotFound }

// ConflictError reports a write that presented a stale version.
type ConflictError struct {
	ID       string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s: %s: expected version %d, stored version %d", e.ID, ErrorConflict, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrorConflict }

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrorStoreUnavailable, op, err)
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}
