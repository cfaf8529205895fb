package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// OutcomeStore defines the produced boundary of the result sink: one
// outcome record per completed interaction, plus the aggregate read the
// frontier tracker consumes.
type OutcomeStore interface {
	// Create persists one interaction outcome record.
	Create(ctx context.Context, record *domain.OutcomeRecord) error

	// ListByLearnerItem retrieves all outcomes recorded against a learner
	// content item, newest first.
	ListByLearnerItem(ctx context.Context, learnerItemID uuid.UUID) ([]*domain.OutcomeRecord, error)

	// UnitProgress computes the aggregated completion percentage for a
	// learner unit: completed, non-retired items over all non-retired items.
	UnitProgress(ctx context.Context, learnerUnitID uuid.UUID) (float64, error)
}
