package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// PostgresCurriculumStore implements the store.CurriculumStore interface
// using a PostgreSQL database as the storage backend. It is strictly
// read-only; curriculum rows are written by the authoring system.
type PostgresCurriculumStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCurriculumStore creates a new PostgreSQL implementation of
// the CurriculumStore interface. If logger is nil, a default logger will
// be used.
func NewPostgresCurriculumStore(db store.DBTX, logger *slog.Logger) *PostgresCurriculumStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCurriculumStore{
		db:     db,
		logger: logger.With(slog.String("component", "curriculum_store")),
	}
}

// Ensure PostgresCurriculumStore implements store.CurriculumStore interface
var _ store.CurriculumStore = (*PostgresCurriculumStore)(nil)

const curriculumUnitColumns = `id, parent_id, plan_id, kind, title, position, publishable, enabled, created_at, updated_at`

// GetUnit implements store.CurriculumStore.GetUnit
func (s *PostgresCurriculumStore) GetUnit(ctx context.Context, id uuid.UUID) (*domain.CurriculumUnit, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + curriculumUnitColumns + `
		FROM curriculum_units
		WHERE id = $1
	`

	unit, err := scanCurriculumUnit(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("curriculum unit not found", slog.String("unit_id", id.String()))
			return nil, store.ErrUnitNotFound
		}
		log.Error("failed to get curriculum unit",
			slog.String("error", err.Error()),
			slog.String("unit_id", id.String()))
		return nil, err
	}
	return unit, nil
}

// ListModules implements store.CurriculumStore.ListModules
func (s *PostgresCurriculumStore) ListModules(ctx context.Context, planID uuid.UUID) ([]*domain.CurriculumUnit, error) {
	query := `
		SELECT ` + curriculumUnitColumns + `
		FROM curriculum_units
		WHERE plan_id = $1 AND kind = $2
		ORDER BY position ASC
	`
	return s.listUnits(ctx, query, planID, domain.UnitKindModule)
}

// ListChildUnits implements store.CurriculumStore.ListChildUnits
func (s *PostgresCurriculumStore) ListChildUnits(ctx context.Context, parentID uuid.UUID) ([]*domain.CurriculumUnit, error) {
	query := `
		SELECT ` + curriculumUnitColumns + `
		FROM curriculum_units
		WHERE parent_id = $1
		ORDER BY position ASC
	`
	return s.listUnits(ctx, query, parentID)
}

func (s *PostgresCurriculumStore) listUnits(ctx context.Context, query string, args ...any) ([]*domain.CurriculumUnit, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query curriculum units", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query curriculum units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var units []*domain.CurriculumUnit
	for rows.Next() {
		unit, err := scanCurriculumUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan curriculum unit row: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating curriculum unit rows: %w", err)
	}
	return units, nil
}

const contentItemColumns = `id, unit_id, covering_unit_ids, kind, modality, position, payload, markers, no_auto_generate, fingerprint, created_at, updated_at`

// GetContentItem implements store.CurriculumStore.GetContentItem
func (s *PostgresCurriculumStore) GetContentItem(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + contentItemColumns + `
		FROM content_items
		WHERE id = $1
	`

	item, err := scanContentItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("content item not found", slog.String("item_id", id.String()))
			return nil, store.ErrContentItemNotFound
		}
		log.Error("failed to get content item",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return nil, err
	}
	return item, nil
}

// ListContentItems implements store.CurriculumStore.ListContentItems.
// Cross-cutting items are matched through their covering-unit list, so a
// unit sees every item that spans it, not just the ones it owns.
func (s *PostgresCurriculumStore) ListContentItems(ctx context.Context, unitID uuid.UUID) ([]*domain.ContentItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + contentItemColumns + `
		FROM content_items
		WHERE unit_id = $1 OR covering_unit_ids @> jsonb_build_array($1::text)
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, unitID)
	if err != nil {
		log.Error("failed to query content items",
			slog.String("error", err.Error()),
			slog.String("unit_id", unitID.String()))
		return nil, fmt.Errorf("failed to query content items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content item rows: %w", err)
	}
	return items, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCurriculumUnit(row rowScanner) (*domain.CurriculumUnit, error) {
	var unit domain.CurriculumUnit
	err := row.Scan(
		&unit.ID,
		&unit.ParentID,
		&unit.PlanID,
		&unit.Kind,
		&unit.Title,
		&unit.Position,
		&unit.Publishable,
		&unit.Enabled,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func scanContentItem(row rowScanner) (*domain.ContentItem, error) {
	var item domain.ContentItem
	var coveringUnits, markers []byte
	var payload []byte
	var fingerprint int64

	err := row.Scan(
		&item.ID,
		&item.UnitID,
		&coveringUnits,
		&item.Kind,
		&item.Modality,
		&item.Position,
		&payload,
		&markers,
		&item.NoAutoGenerate,
		&fingerprint,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Payload = json.RawMessage(payload)
	// Fingerprints are stored as signed BIGINT with the bit pattern of the
	// unsigned hash.
	item.Fingerprint = uint64(fingerprint)

	if len(coveringUnits) > 0 {
		var ids []uuid.UUID
		if err := json.Unmarshal(coveringUnits, &ids); err != nil {
			return nil, fmt.Errorf("failed to decode covering unit IDs: %w", err)
		}
		item.CoveringUnitIDs = ids
	}
	if len(markers) > 0 {
		var names []string
		if err := json.Unmarshal(markers, &names); err != nil {
			return nil, fmt.Errorf("failed to decode markers: %w", err)
		}
		item.Markers = names
	}
	return &item, nil
}
