package mocks

import (
	"context"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/personalization"
)

// PersonalizerFunc adapts a function to the personalization.Personalizer
// interface, for injecting per-item behavior in tests.
type PersonalizerFunc func(ctx context.Context, item *domain.ContentItem, profile *domain.Profile) (*personalization.Result, error)

// Personalize calls the wrapped function.
func (f PersonalizerFunc) Personalize(ctx context.Context, item *domain.ContentItem, profile *domain.Profile) (*personalization.Result, error) {
	return f(ctx, item, profile)
}
