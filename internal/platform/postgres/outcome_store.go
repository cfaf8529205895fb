package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// PostgresOutcomeStore implements the store.OutcomeStore interface using
// a PostgreSQL database as the storage backend.
type PostgresOutcomeStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresOutcomeStore creates a new PostgreSQL implementation of the
// OutcomeStore interface. If logger is nil, a default logger will be used.
func NewPostgresOutcomeStore(db store.DBTX, logger *slog.Logger) *PostgresOutcomeStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOutcomeStore{
		db:     db,
		logger: logger.With(slog.String("component", "outcome_store")),
	}
}

// Ensure PostgresOutcomeStore implements store.OutcomeStore interface
var _ store.OutcomeStore = (*PostgresOutcomeStore)(nil)

// Create implements store.OutcomeStore.Create
func (s *PostgresOutcomeStore) Create(ctx context.Context, record *domain.OutcomeRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO outcome_records (id, learner_id, learner_item_id, kind, score, completed, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.LearnerID,
		record.LearnerItemID,
		record.Kind,
		record.Score,
		record.Completed,
		record.RecordedAt,
	)
	if err != nil {
		log.Error("failed to create outcome record",
			slog.String("error", err.Error()),
			slog.String("record_id", record.ID.String()))
		return fmt.Errorf("failed to create outcome record: %w", MapError(err))
	}
	return nil
}

// ListByLearnerItem implements store.OutcomeStore.ListByLearnerItem
func (s *PostgresOutcomeStore) ListByLearnerItem(ctx context.Context, learnerItemID uuid.UUID) ([]*domain.OutcomeRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, learner_id, learner_item_id, kind, score, completed, recorded_at
		FROM outcome_records
		WHERE learner_item_id = $1
		ORDER BY recorded_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, learnerItemID)
	if err != nil {
		log.Error("failed to query outcome records",
			slog.String("error", err.Error()),
			slog.String("learner_item_id", learnerItemID.String()))
		return nil, fmt.Errorf("failed to query outcome records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.OutcomeRecord
	for rows.Next() {
		var record domain.OutcomeRecord
		if err := rows.Scan(
			&record.ID,
			&record.LearnerID,
			&record.LearnerItemID,
			&record.Kind,
			&record.Score,
			&record.Completed,
			&record.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome record row: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome record rows: %w", err)
	}
	return records, nil
}

// UnitProgress implements store.OutcomeStore.UnitProgress. Retired items
// are excluded from both sides of the ratio so removing source content
// never pushes a learner's progress backwards on its own.
func (s *PostgresOutcomeStore) UnitProgress(ctx context.Context, learnerUnitID uuid.UUID) (float64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT
			COUNT(*) FILTER (WHERE completed_at IS NOT NULL),
			COUNT(*)
		FROM learner_content_items
		WHERE learner_unit_id = $1 AND NOT retired
	`

	var completed, total int
	if err := s.db.QueryRowContext(ctx, query, learnerUnitID).Scan(&completed, &total); err != nil {
		log.Error("failed to compute unit progress",
			slog.String("error", err.Error()),
			slog.String("learner_unit_id", learnerUnitID.String()))
		return 0, fmt.Errorf("failed to compute unit progress: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return 100 * float64(completed) / float64(total), nil
}
