package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/service"
	"github.com/BuzzLyutic/task-lifecycle-engine/pkg/respond"
)

type TaskHandler struct {
	service *service.LifecycleService
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.LifecycleService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
	}
}

type updateStatusRequest struct {
	Status  model.Status `json:"status"`
	Version int64        `json:"version"`
}

type updateTaskRequest struct {
	model.TaskPatch
	Version int64 `json:"version"`
}

type addDependencyRequest struct {
	DependsOnID string `json:"depends_on_id"`
}

type assignRequest struct {
	UserID string `json:"user_id"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTaskInput
	if !h.decode(w, r, &req) {
		return
	}

	idempKey := r.Header.Get("Idempotency-Key")
	task, err := h.service.CreateTask(r.Context(), req, idempKey)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%s", task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter model.TaskFilter
	if status := q.Get("status"); status != "" {
		s := model.Status(status)
		filter.Status = &s
	}
	if assignee := q.Get("assignee"); assignee != "" {
		filter.AssigneeID = &assignee
	}

	var limit int
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	tasks, err := h.service.ListTasks(r.Context(), filter, limit)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Version <= 0 {
		respond.ErrorWithDetails(w, r, http.StatusBadRequest, "version is required",
			map[string]string{"field": "version"})
		return
	}

	task, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Version)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Version <= 0 {
		respond.ErrorWithDetails(w, r, http.StatusBadRequest, "version is required",
			map[string]string{"field": "version"})
		return
	}

	task, err := h.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), req.TaskPatch, req.Version)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.OverdueTasks(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Subtasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.Subtasks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

// AddSubtask returns the child, whose parent_id now names the parent.
func (h *TaskHandler) AddSubtask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.AddSubtask(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "childId"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) RemoveSubtask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.RemoveSubtask(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "childId"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) AddDependency(w http.ResponseWriter, r *http.Request) {
	var req addDependencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DependsOnID == "" {
		respond.ErrorWithDetails(w, r, http.StatusBadRequest, "depends_on_id is required",
			map[string]string{"field": "depends_on_id"})
		return
	}

	task, err := h.service.AddDependency(r.Context(), chi.URLParam(r, "id"), req.DependsOnID)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.RemoveDependency(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "depId"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Dependencies(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.Dependencies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Dependents(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.Dependents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.service.AssignUser(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.UnassignUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Actionable(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ActionableTasks(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, stats)
}

// decode writes a 400 and reports false when the body is missing or malformed.
func (h *TaskHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Debug("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}
