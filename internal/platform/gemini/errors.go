package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyPayload is returned when a content item has no payload to
	// personalize.
	ErrEmptyPayload = errors.New("content item payload cannot be empty")
)
