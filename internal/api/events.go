package api

import (
	"net/http"

	apperrors "github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/ingest"
	"github.com/gin-gonic/gin"
)

// EventsHandler exposes the EventIngest operation over HTTP. It exists
// only so the ingest process has an entrypoint for producers.
type EventsHandler struct {
	ingest *ingest.Service
	log    *logger.Logger
}

func NewEventsHandler(ingest *ingest.Service, log *logger.Logger) *EventsHandler {
	return &EventsHandler{ingest: ingest, log: log}
}

// IngestEvent handles POST /events.
func (h *EventsHandler) IngestEvent(c *gin.Context) {
	var req ingest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request payload", err))
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), req)
	if err != nil {
		if apperrors.IsDuplicateEvent(err) {
			c.JSON(http.StatusConflict, errorResponse("duplicate event", err))
			return
		}
		h.log.Errorw("failed to ingest event", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse("failed to ingest event", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id":       result.EventID,
		"ingestion_time": result.IngestionTime,
	})
}

// Healthz handles GET /healthz.
func (h *EventsHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// errorResponse builds the standard error envelope for a failed request:
// display is the client-facing message, err the internal cause recorded
// for debugging but never shown verbatim to the caller.
func errorResponse(display string, err error) apperrors.ErrorResponse {
	return apperrors.ErrorResponse{
		Success: false,
		Error: apperrors.ErrorDetail{
			Display:       display,
			InternalError: err.Error(),
		},
	}
}
