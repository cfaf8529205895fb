package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pathforge/pathforge-api/internal/api/shared"
	"github.com/pathforge/pathforge-api/internal/service"
)

// GenerationHandler handles learner-facing generation HTTP requests.
type GenerationHandler struct {
	svc       *service.GenerationService
	validator *validator.Validate
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(svc *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		svc:       svc,
		validator: validator.New(),
	}
}

// StartGeneration handles POST /api/learners/{learnerID}/generation
// requests. Responds 202: the first unit may be materialized inline but
// the rest of the batch completes asynchronously.
func (h *GenerationHandler) StartGeneration(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := parseUUIDParam(chi.URLParam(r, "learnerID"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid learner ID")
		return
	}

	var req StartGenerationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	planID, ok := parseUUIDParam(req.PlanID)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid plan ID")
		return
	}

	result, err := h.svc.StartGeneration(r.Context(), learnerID, planID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, startResultToResponse(result))
}

// RecordProgress handles POST /api/learners/{learnerID}/units/{unitID}/progress
// requests.
func (h *GenerationHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := parseUUIDParam(chi.URLParam(r, "learnerID"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid learner ID")
		return
	}
	unitID, ok := parseUUIDParam(chi.URLParam(r, "unitID"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	var req ProgressRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	adv, err := h.svc.Advance(r.Context(), learnerID, unitID, *req.Progress)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, advanceToResponse(adv))
}

// UnitStatus handles GET /api/learners/{learnerID}/units/{unitID} requests.
func (h *GenerationHandler) UnitStatus(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := parseUUIDParam(chi.URLParam(r, "learnerID"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid learner ID")
		return
	}
	unitID, ok := parseUUIDParam(chi.URLParam(r, "unitID"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	status, err := h.svc.UnitStatus(r.Context(), learnerID, unitID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// RecordOutcome handles POST /api/learners/{learnerID}/items/{itemID}/outcome
// requests.
func (h *GenerationHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := parseUUIDParam(chi.URLParam(r, "learnerID"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid learner ID")
		return
	}
	itemID, ok := parseUUIDParam(chi.URLParam(r, "itemID"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item ID")
		return
	}

	var req OutcomeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.svc.RecordOutcome(r.Context(), learnerID, itemID, *req.Score, req.Completed); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
