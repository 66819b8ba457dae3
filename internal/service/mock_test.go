package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/repo"
)

type MockTaskRepository struct {
	mock.Mock
}

var _ repo.TaskRepository = (*MockTaskRepository)(nil)

func (m *MockTaskRepository) FindByID(ctx context.Context, id string) (model.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskRepository) Save(ctx context.Context, t model.Task, expectedVersion int64) (model.Task, error) {
	args := m.Called(ctx, t, expectedVersion)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskRepository) ListDependencyStatuses(ctx context.Context, ids []string) (map[string]model.Status, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[string]model.Status), args.Error(1)
}

func (m *MockTaskRepository) List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error) {
	args := m.Called(ctx, filter, limit)
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskRepository) ListEdges(ctx context.Context) ([]model.Edge, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Edge), args.Error(1)
}

func (m *MockTaskRepository) GetStats(ctx context.Context) (repo.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(repo.Stats), args.Error(1)
}

func (m *MockTaskRepository) SaveIdempotencyKey(ctx context.Context, key string, resourceID string) error {
	args := m.Called(ctx, key, resourceID)
	return args.Error(0)
}

func (m *MockTaskRepository) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockTaskRepository) LockGraph(ctx context.Context) (func(), error) {
	args := m.Called(ctx)
	unlock, _ := args.Get(0).(func())
	return unlock, args.Error(1)
}
