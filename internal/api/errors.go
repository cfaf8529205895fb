package api

import (
	"errors"
	"net/http"

	"github.com/pathforge/pathforge-api/internal/api/shared"
	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/frontier"
	"github.com/pathforge/pathforge-api/internal/reconciler"
	"github.com/pathforge/pathforge-api/internal/service"
	"github.com/pathforge/pathforge-api/internal/store"
)

// handleServiceError maps service and domain errors to HTTP responses.
// Unknown errors become a sanitized 500; the raw error only reaches the
// logs.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotEligible):
		shared.RespondWithErrorAndLog(w, r, http.StatusConflict,
			"No publishable content to generate for this plan", err)
	case errors.Is(err, service.ErrStatusNotFound):
		shared.RespondWithErrorAndLog(w, r, http.StatusNotFound,
			"No generation state for this unit", err)
	case errors.Is(err, frontier.ErrUnitNotMaterialized):
		shared.RespondWithErrorAndLog(w, r, http.StatusConflict,
			"Unit has not been generated for this learner yet", err)
	case errors.Is(err, domain.ErrProgressRegression):
		shared.RespondWithErrorAndLog(w, r, http.StatusConflict,
			"Progress cannot move backwards", err)
	case errors.Is(err, domain.ErrProgressOutOfRange),
		errors.Is(err, domain.ErrOutcomeScoreInvalid),
		errors.Is(err, reconciler.ErrChangeInvalid):
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			"Invalid request values", err)
	case store.IsNotFoundError(err):
		shared.RespondWithErrorAndLog(w, r, http.StatusNotFound,
			"Resource not found", err)
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Internal server error", err)
	}
}
