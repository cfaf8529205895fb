package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using
// PostgreSQL. The tasks table is the queue: claiming is an UPDATE with
// SKIP LOCKED, dedup is a partial unique index over non-terminal rows,
// and retry backoff is an eligibility predicate in the claim query.
type PostgresTaskStore struct {
	db      store.DBTX
	logger  *slog.Logger
	backoff time.Duration
}

// NewPostgresTaskStore creates a new PostgresTaskStore. backoff is the
// linear retry spacing: a task with n failures is not claimable again
// until n*backoff after its last failure. A non-positive backoff disables
// the delay.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger, backoff time.Duration) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:      db,
		logger:  logger.With(slog.String("component", "task_store")),
		backoff: backoff,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:      tx,
		logger:  s.logger,
		backoff: s.backoff,
	}
}

const taskColumns = `id, kind, learner_id, unit_id, priority, status, retry_count, error_detail, item_id, created_at, updated_at`

// Enqueue implements store.TaskStore.Enqueue. The partial unique index on
// live tasks turns a duplicate enqueue into ErrDuplicateTask without any
// read-before-write race.
func (s *PostgresTaskStore) Enqueue(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during enqueue",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO generation_tasks
			(` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Kind,
		task.LearnerID,
		task.UnitID,
		task.Priority,
		task.Status,
		task.RetryCount,
		task.ErrorDetail,
		task.ItemID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("duplicate task suppressed",
				slog.String("learner_id", task.LearnerID.String()),
				slog.String("unit_id", task.UnitID.String()),
				slog.String("kind", string(task.Kind)))
			return fmt.Errorf("%w: %v", store.ErrDuplicateTask, err)
		}
		log.Error("failed to enqueue task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// DequeueNext implements store.TaskStore.DequeueNext. The claim is a
// single UPDATE over a SKIP LOCKED subselect, so concurrent processors
// never claim the same row. Ordering is priority ascending with creation
// time breaking ties.
func (s *PostgresTaskStore) DequeueNext(ctx context.Context, max int) ([]*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if max <= 0 {
		return nil, nil
	}

	query := `
		UPDATE generation_tasks
		SET status = $1, updated_at = now()
		WHERE id IN (
			SELECT id
			FROM generation_tasks
			WHERE status = $2
			  AND updated_at + make_interval(secs => retry_count * $3) <= now()
			ORDER BY priority ASC, created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns + `
	`
	rows, err := s.db.QueryContext(ctx, query,
		domain.TaskStatusProcessing,
		domain.TaskStatusPending,
		s.backoff.Seconds(),
		max,
	)
	if err != nil {
		log.Error("failed to claim tasks", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed task rows: %w", err)
	}
	return tasks, nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE id = $1
	`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}
	return task, nil
}

// Update implements store.TaskStore.Update
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE generation_tasks
		SET status = $1, retry_count = $2, error_detail = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		task.Status,
		task.RetryCount,
		task.ErrorDetail,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("failed to update task: %w", err)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// ListForTarget implements store.TaskStore.ListForTarget
func (s *PostgresTaskStore) ListForTarget(ctx context.Context, learnerID, unitID uuid.UUID) ([]*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE learner_id = $1 AND unit_id = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, learnerID, unitID)
	if err != nil {
		log.Error("failed to query tasks for target",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()),
			slog.String("unit_id", unitID.String()))
		return nil, fmt.Errorf("failed to query tasks for target: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// ReapStale implements store.TaskStore.ReapStale
func (s *PostgresTaskStore) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE generation_tasks
		SET status = $1, updated_at = now()
		WHERE status = $2
		  AND updated_at < now() - make_interval(secs => $3)
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
		olderThan.Seconds(),
	)
	if err != nil {
		log.Error("failed to reap stale tasks", slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to reap stale tasks: %w", err)
	}
	reaped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(reaped), nil
}

// DeleteTerminal implements store.TaskStore.DeleteTerminal
func (s *PostgresTaskStore) DeleteTerminal(ctx context.Context, retention time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM generation_tasks
		WHERE status IN ($1, $2)
		  AND updated_at < now() - make_interval(secs => $3)
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
		retention.Seconds(),
	)
	if err != nil {
		log.Error("failed to delete terminal tasks", slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to delete terminal tasks: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(removed), nil
}

func scanTask(row rowScanner) (*domain.GenerationTask, error) {
	var task domain.GenerationTask
	var errorDetail sql.NullString

	err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.LearnerID,
		&task.UnitID,
		&task.Priority,
		&task.Status,
		&task.RetryCount,
		&errorDetail,
		&task.ItemID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.ErrorDetail = errorDetail.String
	return &task, nil
}
