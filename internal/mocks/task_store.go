package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/store"
)

// TaskStore is an in-memory store.TaskStore with the same dedup contract
// as the postgres queue: at most one non-terminal task per
// (learner, unit, kind, item) tuple.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.GenerationTask

	// EnqueueErr, when set, fails every Enqueue call.
	EnqueueErr error
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*domain.GenerationTask)}
}

func cloneTask(task *domain.GenerationTask) *domain.GenerationTask {
	c := *task
	return &c
}

// All returns every stored task, for assertions.
func (s *TaskStore) All() []*domain.GenerationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*domain.GenerationTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		all = append(all, cloneTask(task))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all
}

func (s *TaskStore) Enqueue(_ context.Context, task *domain.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EnqueueErr != nil {
		return s.EnqueueErr
	}
	for _, existing := range s.tasks {
		if existing.Terminal() {
			continue
		}
		if existing.LearnerID == task.LearnerID &&
			existing.UnitID == task.UnitID &&
			existing.Kind == task.Kind &&
			existing.ItemID == task.ItemID {
			return store.ErrDuplicateTask
		}
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) DequeueNext(_ context.Context, max int) ([]*domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*domain.GenerationTask
	for _, task := range s.tasks {
		if task.Status == domain.TaskStatusPending {
			pending = append(pending, task)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > max {
		pending = pending[:max]
	}
	claimed := make([]*domain.GenerationTask, 0, len(pending))
	for _, task := range pending {
		task.Status = domain.TaskStatusProcessing
		task.UpdatedAt = time.Now().UTC()
		claimed = append(claimed, cloneTask(task))
	}
	return claimed, nil
}

func (s *TaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (s *TaskStore) Update(_ context.Context, task *domain.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) ListForTarget(_ context.Context, learnerID, unitID uuid.UUID) ([]*domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*domain.GenerationTask
	for _, task := range s.tasks {
		if task.LearnerID == learnerID && task.UnitID == unitID {
			matched = append(matched, cloneTask(task))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return matched, nil
}

func (s *TaskStore) ReapStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	reaped := 0
	for _, task := range s.tasks {
		if task.Status == domain.TaskStatusProcessing && task.UpdatedAt.Before(cutoff) {
			task.Status = domain.TaskStatusPending
			task.UpdatedAt = time.Now().UTC()
			reaped++
		}
	}
	return reaped, nil
}

func (s *TaskStore) DeleteTerminal(_ context.Context, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-retention)
	removed := 0
	for id, task := range s.tasks {
		if task.Terminal() && task.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}

// WithTx returns the store itself; the in-memory implementation has no
// transactions.
func (s *TaskStore) WithTx(_ *sql.Tx) store.TaskStore {
	return s
}
