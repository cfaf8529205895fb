package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// PostgresLearnerStore implements the store.LearnerStore interface using
// a PostgreSQL database as the storage backend.
type PostgresLearnerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLearnerStore creates a new PostgreSQL implementation of the
// LearnerStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller. If logger is nil,
// a default logger will be used.
func NewPostgresLearnerStore(db store.DBTX, logger *slog.Logger) *PostgresLearnerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLearnerStore{
		db:     db,
		logger: logger.With(slog.String("component", "learner_store")),
	}
}

// Ensure PostgresLearnerStore implements store.LearnerStore interface
var _ store.LearnerStore = (*PostgresLearnerStore)(nil)

// WithTx implements store.LearnerStore.WithTx
func (s *PostgresLearnerStore) WithTx(tx *sql.Tx) store.LearnerStore {
	return &PostgresLearnerStore{
		db:     tx,
		logger: s.logger,
	}
}

const learnerUnitColumns = `id, learner_id, source_unit_id, kind, status, position, profile_snapshot_id, difficulty_adjustment, progress, audit_trail, created_at, updated_at`

// CreateUnit implements store.LearnerStore.CreateUnit. The uniqueness of
// (learner, source unit) rests on an insert-time constraint, so two
// concurrent materializations race cleanly: one wins the insert, the
// other gets ErrLearnerUnitExists.
func (s *PostgresLearnerStore) CreateUnit(ctx context.Context, unit *domain.LearnerUnit) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := unit.Validate(); err != nil {
		log.Warn("learner unit validation failed during create",
			slog.String("error", err.Error()),
			slog.String("learner_unit_id", unit.ID.String()))
		return err
	}

	auditTrail, err := json.Marshal(unit.AuditTrail)
	if err != nil {
		return fmt.Errorf("failed to encode audit trail: %w", err)
	}

	query := `
		INSERT INTO learner_units
			(` + learnerUnitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		unit.ID,
		unit.LearnerID,
		unit.SourceUnitID,
		unit.Kind,
		unit.Status,
		unit.Position,
		unit.ProfileSnapshotID,
		unit.DifficultyAdjustment,
		unit.Progress,
		auditTrail,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("learner unit already exists",
				slog.String("learner_id", unit.LearnerID.String()),
				slog.String("source_unit_id", unit.SourceUnitID.String()))
			return fmt.Errorf("%w: %v", store.ErrLearnerUnitExists, err)
		}
		log.Error("failed to create learner unit",
			slog.String("error", err.Error()),
			slog.String("learner_unit_id", unit.ID.String()))
		return fmt.Errorf("failed to create learner unit: %w", err)
	}
	return nil
}

// GetUnit implements store.LearnerStore.GetUnit
func (s *PostgresLearnerStore) GetUnit(ctx context.Context, id uuid.UUID) (*domain.LearnerUnit, error) {
	query := `
		SELECT ` + learnerUnitColumns + `
		FROM learner_units
		WHERE id = $1
	`
	return s.getUnit(ctx, query, id)
}

// GetUnitBySource implements store.LearnerStore.GetUnitBySource
func (s *PostgresLearnerStore) GetUnitBySource(ctx context.Context, learnerID, sourceUnitID uuid.UUID) (*domain.LearnerUnit, error) {
	query := `
		SELECT ` + learnerUnitColumns + `
		FROM learner_units
		WHERE learner_id = $1 AND source_unit_id = $2
	`
	return s.getUnit(ctx, query, learnerID, sourceUnitID)
}

func (s *PostgresLearnerStore) getUnit(ctx context.Context, query string, args ...any) (*domain.LearnerUnit, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	unit, err := scanLearnerUnit(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLearnerUnitNotFound
		}
		log.Error("failed to get learner unit", slog.String("error", err.Error()))
		return nil, err
	}
	return unit, nil
}

// ListUnitsByLearner implements store.LearnerStore.ListUnitsByLearner
func (s *PostgresLearnerStore) ListUnitsByLearner(ctx context.Context, learnerID uuid.UUID) ([]*domain.LearnerUnit, error) {
	query := `
		SELECT ` + learnerUnitColumns + `
		FROM learner_units
		WHERE learner_id = $1
		ORDER BY position ASC, created_at ASC
	`
	return s.listUnits(ctx, query, learnerID)
}

// ListUnitsBySource implements store.LearnerStore.ListUnitsBySource
func (s *PostgresLearnerStore) ListUnitsBySource(ctx context.Context, sourceUnitID uuid.UUID) ([]*domain.LearnerUnit, error) {
	query := `
		SELECT ` + learnerUnitColumns + `
		FROM learner_units
		WHERE source_unit_id = $1
		ORDER BY created_at ASC
	`
	return s.listUnits(ctx, query, sourceUnitID)
}

func (s *PostgresLearnerStore) listUnits(ctx context.Context, query string, args ...any) ([]*domain.LearnerUnit, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query learner units", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query learner units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var units []*domain.LearnerUnit
	for rows.Next() {
		unit, err := scanLearnerUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learner unit row: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learner unit rows: %w", err)
	}
	return units, nil
}

// UpdateUnit implements store.LearnerStore.UpdateUnit
func (s *PostgresLearnerStore) UpdateUnit(ctx context.Context, unit *domain.LearnerUnit) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := unit.Validate(); err != nil {
		log.Warn("learner unit validation failed during update",
			slog.String("error", err.Error()),
			slog.String("learner_unit_id", unit.ID.String()))
		return err
	}

	auditTrail, err := json.Marshal(unit.AuditTrail)
	if err != nil {
		return fmt.Errorf("failed to encode audit trail: %w", err)
	}

	unit.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE learner_units
		SET status = $1,
		    progress = $2,
		    difficulty_adjustment = $3,
		    audit_trail = $4,
		    updated_at = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		unit.Status,
		unit.Progress,
		unit.DifficultyAdjustment,
		auditTrail,
		unit.UpdatedAt,
		unit.ID,
	)
	if err != nil {
		log.Error("failed to update learner unit",
			slog.String("error", err.Error()),
			slog.String("learner_unit_id", unit.ID.String()))
		return fmt.Errorf("failed to update learner unit: %w", err)
	}
	return CheckRowsAffected(result, store.ErrLearnerUnitNotFound)
}

const learnerItemColumns = `id, learner_unit_id, source_item_id, kind, position, personalized, synthesized, source_fingerprint, retired, attempts, score, completed_at, created_at, updated_at`

// CreateItem implements store.LearnerStore.CreateItem
func (s *PostgresLearnerStore) CreateItem(ctx context.Context, item *domain.LearnerContentItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO learner_content_items
			(` + learnerItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.LearnerUnitID,
		item.SourceItemID,
		item.Kind,
		item.Position,
		nullableJSON(item.Personalized),
		item.Synthesized,
		int64(item.SourceFingerprint),
		item.Retired,
		item.Attempts,
		item.Score,
		item.CompletedAt,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create learner content item",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))
		return fmt.Errorf("failed to create learner content item: %w", MapError(err))
	}
	return nil
}

// GetItem implements store.LearnerStore.GetItem
func (s *PostgresLearnerStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.LearnerContentItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + learnerItemColumns + `
		FROM learner_content_items
		WHERE id = $1
	`
	item, err := scanLearnerItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLearnerItemNotFound
		}
		log.Error("failed to get learner content item",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return nil, err
	}
	return item, nil
}

// ListItems implements store.LearnerStore.ListItems
func (s *PostgresLearnerStore) ListItems(ctx context.Context, learnerUnitID uuid.UUID) ([]*domain.LearnerContentItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + learnerItemColumns + `
		FROM learner_content_items
		WHERE learner_unit_id = $1
		ORDER BY position ASC, created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, learnerUnitID)
	if err != nil {
		log.Error("failed to query learner content items",
			slog.String("error", err.Error()),
			slog.String("learner_unit_id", learnerUnitID.String()))
		return nil, fmt.Errorf("failed to query learner content items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.LearnerContentItem
	for rows.Next() {
		item, err := scanLearnerItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learner content item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learner content item rows: %w", err)
	}
	return items, nil
}

// UpdateItem implements store.LearnerStore.UpdateItem
func (s *PostgresLearnerStore) UpdateItem(ctx context.Context, item *domain.LearnerContentItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	item.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE learner_content_items
		SET personalized = $1,
		    source_fingerprint = $2,
		    retired = $3,
		    position = $4,
		    attempts = $5,
		    score = $6,
		    completed_at = $7,
		    updated_at = $8
		WHERE id = $9
	`
	result, err := s.db.ExecContext(ctx, query,
		nullableJSON(item.Personalized),
		int64(item.SourceFingerprint),
		item.Retired,
		item.Position,
		item.Attempts,
		item.Score,
		item.CompletedAt,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		log.Error("failed to update learner content item",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))
		return fmt.Errorf("failed to update learner content item: %w", err)
	}
	return CheckRowsAffected(result, store.ErrLearnerItemNotFound)
}

func scanLearnerUnit(row rowScanner) (*domain.LearnerUnit, error) {
	var unit domain.LearnerUnit
	var auditTrail []byte

	err := row.Scan(
		&unit.ID,
		&unit.LearnerID,
		&unit.SourceUnitID,
		&unit.Kind,
		&unit.Status,
		&unit.Position,
		&unit.ProfileSnapshotID,
		&unit.DifficultyAdjustment,
		&unit.Progress,
		&auditTrail,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(auditTrail) > 0 {
		if err := json.Unmarshal(auditTrail, &unit.AuditTrail); err != nil {
			return nil, fmt.Errorf("failed to decode audit trail: %w", err)
		}
	}
	return &unit, nil
}

func scanLearnerItem(row rowScanner) (*domain.LearnerContentItem, error) {
	var item domain.LearnerContentItem
	var personalized []byte
	var fingerprint int64
	var completedAt sql.NullTime

	err := row.Scan(
		&item.ID,
		&item.LearnerUnitID,
		&item.SourceItemID,
		&item.Kind,
		&item.Position,
		&personalized,
		&item.Synthesized,
		&fingerprint,
		&item.Retired,
		&item.Attempts,
		&item.Score,
		&completedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(personalized) > 0 {
		item.Personalized = json.RawMessage(personalized)
	}
	item.SourceFingerprint = uint64(fingerprint)
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	return &item, nil
}

// nullableJSON maps an empty raw message to SQL NULL so that "pure
// reference" items store NULL rather than an empty string.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
