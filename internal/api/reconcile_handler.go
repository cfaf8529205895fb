package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/api/shared"
	"github.com/pathforge/pathforge-api/internal/reconciler"
)

// ReconcileHandler receives source-curriculum change notifications from
// the authoring system and fans them out as reconciliation tasks.
type ReconcileHandler struct {
	rec       *reconciler.Reconciler
	validator *validator.Validate
}

// NewReconcileHandler creates a new ReconcileHandler.
func NewReconcileHandler(rec *reconciler.Reconciler) *ReconcileHandler {
	return &ReconcileHandler{
		rec:       rec,
		validator: validator.New(),
	}
}

// SourceChange handles POST /api/source-changes requests. Responds 202:
// the fan-out enqueues tasks, the patches themselves apply on the next
// queue drain.
func (h *ReconcileHandler) SourceChange(w http.ResponseWriter, r *http.Request) {
	var req SourceChangeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	unitID, ok := parseUUIDParam(req.UnitID)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}
	change := &reconciler.SourceChange{
		Kind:   reconciler.ChangeKind(req.Kind),
		UnitID: unitID,
	}
	if req.ItemID != "" {
		itemID, ok := parseUUIDParam(req.ItemID)
		if !ok {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item ID")
			return
		}
		change.ItemID = uuid.NullUUID{UUID: itemID, Valid: true}
	}

	queued, err := h.rec.OnSourceChange(r.Context(), change)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, SourceChangeResponse{Queued: queued})
}
