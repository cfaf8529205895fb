package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/pathforge/pathforge-api/internal/api/shared"
	"github.com/pathforge/pathforge-api/internal/service"
	"github.com/pathforge/pathforge-api/internal/task"
)

// QueueHandler exposes queue draining to external schedulers. There are
// no background workers; a cron or operator call drives the queue.
type QueueHandler struct {
	svc       *service.GenerationService
	validator *validator.Validate
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(svc *service.GenerationService) *QueueHandler {
	return &QueueHandler{
		svc:       svc,
		validator: validator.New(),
	}
}

// ProcessQueueResponse represents the response of one queue drain.
type ProcessQueueResponse struct {
	Processed int           `json:"processed"`
	Results   []task.Result `json:"results"`
}

// ProcessQueue handles POST /api/queue/process requests. An empty body is
// allowed and drains with the configured batch size.
func (h *QueueHandler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	req := ProcessQueueRequest{}
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	results, err := h.svc.ProcessQueue(r.Context(), req.Max)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []task.Result{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ProcessQueueResponse{
		Processed: len(results),
		Results:   results,
	})
}
