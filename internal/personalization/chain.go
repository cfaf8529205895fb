package personalization

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// Chain tries personalizers in order, falling back to the next one on
// transient failure. Structural failures and context cancellation stop the
// chain immediately.
type Chain struct {
	backends []Personalizer
	logger   *slog.Logger
}

// NewChain creates a Chain over the given backends, tried in order.
func NewChain(logger *slog.Logger, backends ...Personalizer) *Chain {
	return &Chain{
		backends: backends,
		logger:   logger.With("component", "personalization_chain"),
	}
}

// Personalize runs the chain. Returns the first successful result, or the
// last error when every backend fails.
func (c *Chain) Personalize(ctx context.Context, item *domain.ContentItem, profile *domain.Profile) (*Result, error) {
	var lastErr error
	for i, backend := range c.backends {
		result, err := backend.Personalize(ctx, item, profile)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrTransientFailure) {
			return nil, err
		}
		c.logger.Warn("personalization backend failed, falling back",
			"backend_index", i,
			"item_id", item.ID,
			"error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrPersonalizationFailed
	}
	return nil, lastErr
}
