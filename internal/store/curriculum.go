package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// CurriculumStore defines read-only access to the authored source
// curriculum. The engine never mutates curriculum rows; publication and
// enablement flags have a single writer on the authoring side.
type CurriculumStore interface {
	// GetUnit retrieves a curriculum unit by ID.
	// Returns ErrUnitNotFound if the unit does not exist.
	GetUnit(ctx context.Context, id uuid.UUID) (*domain.CurriculumUnit, error)

	// ListModules retrieves a plan's module-level units in declared order.
	ListModules(ctx context.Context, planID uuid.UUID) ([]*domain.CurriculumUnit, error)

	// ListChildUnits retrieves a module's topics in declared order.
	ListChildUnits(ctx context.Context, parentID uuid.UUID) ([]*domain.CurriculumUnit, error)

	// GetContentItem retrieves a content item by ID.
	// Returns ErrContentItemNotFound if the item does not exist.
	GetContentItem(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error)

	// ListContentItems retrieves a unit's content items in declared order,
	// including cross-cutting items that list the unit among their covering
	// units.
	ListContentItems(ctx context.Context, unitID uuid.UUID) ([]*domain.ContentItem, error)
}
