package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// TaskStore defines the interface for the durable generation task queue.
type TaskStore interface {
	// Enqueue persists a new pending task. Returns ErrDuplicateTask if a
	// non-terminal task already exists for the same (learner, unit, kind)
	// tuple; callers treat that as a suppressed no-op.
	Enqueue(ctx context.Context, task *domain.GenerationTask) error

	// DequeueNext atomically claims up to max pending tasks, moving them to
	// processing. Ordering is strict priority ascending with FIFO ties.
	DequeueNext(ctx context.Context, max int) ([]*domain.GenerationTask, error)

	// GetByID retrieves a task by ID.
	// Returns ErrTaskNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// Update saves a task's status, retry count and error detail.
	Update(ctx context.Context, task *domain.GenerationTask) error

	// ListForTarget retrieves all tasks targeting a (learner, unit) pair,
	// newest first. Used to surface retry-exhausted failures in status
	// reads.
	ListForTarget(ctx context.Context, learnerID, unitID uuid.UUID) ([]*domain.GenerationTask, error)

	// ReapStale resets tasks stuck in processing longer than olderThan back
	// to pending, returning how many were reset.
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)

	// DeleteTerminal garbage-collects completed and failed tasks older than
	// the retention window, returning how many were removed.
	DeleteTerminal(ctx context.Context, retention time.Duration) (int, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) TaskStore
}
