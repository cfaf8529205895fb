package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// ProfileStore defines the consumed boundary of the cognitive-profile
// provider: the latest snapshot per learner.
type ProfileStore interface {
	// GetLatest retrieves the learner's most recent profile snapshot.
	// Returns ErrProfileNotFound if the provider has no profile yet.
	GetLatest(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error)
}
