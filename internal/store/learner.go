package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// LearnerStore defines the interface for learner-scoped materialized
// curriculum persistence.
type LearnerStore interface {
	// CreateUnit persists a new learner unit. Returns ErrLearnerUnitExists
	// if a copy already exists for the (learner, source unit) pair; the
	// uniqueness is enforced by an insert-time constraint, never by an
	// external lock.
	CreateUnit(ctx context.Context, unit *domain.LearnerUnit) error

	// GetUnit retrieves a learner unit by ID.
	// Returns ErrLearnerUnitNotFound if it does not exist.
	GetUnit(ctx context.Context, id uuid.UUID) (*domain.LearnerUnit, error)

	// GetUnitBySource retrieves the learner's copy of a source unit.
	// Returns ErrLearnerUnitNotFound if none has been materialized.
	GetUnitBySource(ctx context.Context, learnerID, sourceUnitID uuid.UUID) (*domain.LearnerUnit, error)

	// ListUnitsByLearner retrieves all of a learner's materialized units in
	// curriculum order.
	ListUnitsByLearner(ctx context.Context, learnerID uuid.UUID) ([]*domain.LearnerUnit, error)

	// ListUnitsBySource retrieves every learner's copy of a source unit.
	// Used by the change reconciler to fan out update tasks.
	ListUnitsBySource(ctx context.Context, sourceUnitID uuid.UUID) ([]*domain.LearnerUnit, error)

	// UpdateUnit saves changes to an existing learner unit (status,
	// progress, difficulty adjustment, audit trail).
	UpdateUnit(ctx context.Context, unit *domain.LearnerUnit) error

	// CreateItem persists a new learner content item.
	CreateItem(ctx context.Context, item *domain.LearnerContentItem) error

	// GetItem retrieves a learner content item by ID.
	// Returns ErrLearnerItemNotFound if it does not exist.
	GetItem(ctx context.Context, id uuid.UUID) (*domain.LearnerContentItem, error)

	// ListItems retrieves a learner unit's content items in curriculum
	// order, including retired ones.
	ListItems(ctx context.Context, learnerUnitID uuid.UUID) ([]*domain.LearnerContentItem, error)

	// UpdateItem saves changes to an existing learner content item.
	UpdateItem(ctx context.Context, item *domain.LearnerContentItem) error

	// WithTx returns a new LearnerStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) LearnerStore
}
