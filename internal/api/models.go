package api

import (
	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/frontier"
	"github.com/pathforge/pathforge-api/internal/service"
)

// StartGenerationRequest represents the request body for starting
// generation of a learner's plan copy.
type StartGenerationRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid"`
}

// ProgressRequest represents a progress signal for a learner unit.
// Progress is a pointer so an explicit 0 passes required validation.
type ProgressRequest struct {
	Progress *float64 `json:"progress" validate:"required,gte=0,lte=100"`
}

// OutcomeRequest represents one interaction outcome for a learner item.
type OutcomeRequest struct {
	Score     *float64 `json:"score" validate:"required,gte=0,lte=100"`
	Completed bool     `json:"completed"`
}

// ProcessQueueRequest represents a queue drain invocation. Max of 0 uses
// the configured batch size.
type ProcessQueueRequest struct {
	Max int `json:"max" validate:"gte=0"`
}

// SourceChangeRequest represents one edit reported by the authoring system.
type SourceChangeRequest struct {
	Kind   string `json:"kind"    validate:"required,oneof=item_modified item_added item_removed unit_published"`
	UnitID string `json:"unit_id" validate:"required,uuid"`
	ItemID string `json:"item_id" validate:"omitempty,uuid"`
}

// UnitSummary is the transport view of a materialized learner unit.
type UnitSummary struct {
	ID           string  `json:"id"`
	SourceUnitID string  `json:"source_unit_id"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
}

// StartGenerationResponse represents the response to a start-generation
// call.
type StartGenerationResponse struct {
	First        *UnitSummary  `json:"first,omitempty"`
	Materialized []UnitSummary `json:"materialized"`
	Queued       []string      `json:"queued"`
	CaughtUp     bool          `json:"caught_up"`
}

// AdvanceResponse represents the response to a progress signal.
type AdvanceResponse struct {
	Recorded   bool   `json:"recorded"`
	Completed  bool   `json:"completed"`
	Queued     bool   `json:"queued"`
	NextUnitID string `json:"next_unit_id,omitempty"`
	CaughtUp   bool   `json:"caught_up"`
}

// SourceChangeResponse reports how many reconciliation tasks an edit
// fanned out to.
type SourceChangeResponse struct {
	Queued int `json:"queued"`
}

// unitToSummary converts a domain.LearnerUnit to its transport view.
func unitToSummary(unit *domain.LearnerUnit) UnitSummary {
	return UnitSummary{
		ID:           unit.ID.String(),
		SourceUnitID: unit.SourceUnitID.String(),
		Status:       string(unit.Status),
		Progress:     unit.Progress,
	}
}

// startResultToResponse converts a service.StartResult to its transport
// view.
func startResultToResponse(result *service.StartResult) StartGenerationResponse {
	resp := StartGenerationResponse{
		Materialized: make([]UnitSummary, 0, len(result.Materialized)),
		Queued:       make([]string, 0, len(result.Queued)),
		CaughtUp:     result.CaughtUp,
	}
	if result.First != nil {
		first := unitToSummary(result.First)
		resp.First = &first
	}
	for _, unit := range result.Materialized {
		resp.Materialized = append(resp.Materialized, unitToSummary(unit))
	}
	for _, id := range result.Queued {
		resp.Queued = append(resp.Queued, id.String())
	}
	return resp
}

// advanceToResponse converts a frontier.Advance to its transport view.
func advanceToResponse(adv *frontier.Advance) AdvanceResponse {
	resp := AdvanceResponse{
		Recorded:  adv.Recorded,
		Completed: adv.Completed,
		Queued:    adv.Queued,
		CaughtUp:  adv.CaughtUp,
	}
	if adv.NextUnitID.Valid {
		resp.NextUnitID = adv.NextUnitID.UUID.String()
	}
	return resp
}

// parseUUIDParam parses a URL parameter as a UUID.
func parseUUIDParam(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
