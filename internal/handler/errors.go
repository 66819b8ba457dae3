package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/graph"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/repo"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/service"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/statemachine"
	"github.com/BuzzLyutic/task-lifecycle-engine/pkg/respond"
)

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *service.ValidationError
		conflictErr   *repo.ConflictError
		graphErr      *graph.GraphError
		transitionErr *statemachine.TransitionError
		unresolvedErr *statemachine.UnresolvedDependenciesError
	)

	switch {
	case errors.As(err, &validationErr):
		respond.ErrorWithDetails(w, r, http.StatusBadRequest, err.Error(), map[string]string{
			"field":  validationErr.Field,
			"reason": validationErr.Reason,
		})
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &conflictErr):
		respond.ErrorWithDetails(w, r, http.StatusConflict, err.Error(), map[string]any{
			"task_id":          conflictErr.ID,
			"expected_version": conflictErr.Expected,
			"actual_version":   conflictErr.Actual,
		})
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &graphErr) && !errors.Is(err, graph.ErrGraphCorrupted):
		respond.ErrorWithDetails(w, r, http.StatusConflict, err.Error(), map[string]any{
			"path": graphErr.Path,
		})
	case errors.As(err, &transitionErr):
		respond.ErrorWithDetails(w, r, http.StatusConflict, err.Error(), map[string]any{
			"from":    transitionErr.From,
			"to":      transitionErr.To,
			"allowed": statemachine.AllowedTransitions(transitionErr.From),
		})
	case errors.As(err, &unresolvedErr):
		respond.ErrorWithDetails(w, r, http.StatusConflict, err.Error(), map[string]any{
			"task_ids": unresolvedErr.IDs,
		})
	case errors.Is(err, repo.ErrorStoreUnavailable):
		h.logger.Warn("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		respond.Error(w, r, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.logger.Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
