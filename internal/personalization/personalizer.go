// Package personalization defines the boundary between the engine core
// and content personalization backends. The engine treats a personalizer
// as a black box with bounded execution time: implementations must honor
// the caller's context deadline.
package personalization

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// Common errors returned by personalizer implementations
var (
	// ErrPersonalizationFailed is returned when a backend cannot produce a
	// variant for any general reason.
	ErrPersonalizationFailed = errors.New("failed to personalize content item")

	// ErrTransientFailure is returned for temporary backend errors that may
	// resolve on retry or fallback.
	ErrTransientFailure = errors.New("transient error during personalization")

	// ErrInvalidConfig is returned when a personalizer configuration is invalid.
	ErrInvalidConfig = errors.New("invalid personalizer configuration")
)

// Result is a personalized variant of a source content item. A nil
// Transformed payload means no transformation was needed and the learner
// copy should reference the authored source directly.
type Result struct {
	Transformed json.RawMessage
}

// Reference reports whether the result is a pure reference to the source.
func (r *Result) Reference() bool {
	return len(r.Transformed) == 0
}

// Personalizer produces a learner-specific variant of a source content
// item given a cognitive profile snapshot.
type Personalizer interface {
	// Personalize returns the personalized variant, respecting the
	// context's deadline. A pass-through is expressed as a Result with a
	// nil payload, not as an error.
	Personalize(ctx context.Context, item *domain.ContentItem, profile *domain.Profile) (*Result, error)
}
