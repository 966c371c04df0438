package handler

import (
	"shop-ingest/internal/adapter/http/dto"
	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/core/ports"
	"shop-ingest/pkg/apperror"
	"shop-ingest/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BackfillHandler handles the backfill API.
type BackfillHandler struct {
	backfillSvc ports.BackfillService
}

// NewBackfillHandler creates a new BackfillHandler.
func NewBackfillHandler(backfillSvc ports.BackfillService) *BackfillHandler {
	return &BackfillHandler{backfillSvc: backfillSvc}
}

// Enqueue handles POST /ingest/backfill?tenantId=.
func (h *BackfillHandler) Enqueue(c *gin.Context) {
	tenantID, ok := bindTenantQuery(c)
	if !ok {
		return
	}

	job, err := h.backfillSvc.Enqueue(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.EnqueueResponse{OK: true, JobID: job.ID.String()})
}

// GetJob handles GET /ingest/backfill/job/:id.
func (h *BackfillHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid job id"))
		return
	}

	job, err := h.backfillSvc.Status(c.Request.Context(), jobID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, job)
}

// ListStates handles GET /ingest/backfill/state?tenantId=.
func (h *BackfillHandler) ListStates(c *gin.Context) {
	tenantID, ok := bindTenantQuery(c)
	if !ok {
		return
	}

	states, err := h.backfillSvc.States(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if states == nil {
		states = []domain.BackfillState{}
	}

	response.OK(c, states)
}

// ResetState handles POST /ingest/backfill/state/reset.
func (h *BackfillHandler) ResetState(c *gin.Context) {
	var req dto.ResetStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	// Both fields are validated by the binding tags above.
	tenantID := uuid.MustParse(req.TenantID)
	err := h.backfillSvc.ResetState(c.Request.Context(), tenantID, domain.Resource(req.Resource))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.OKResponse{OK: true})
}

func bindTenantQuery(c *gin.Context) (uuid.UUID, bool) {
	var q dto.TenantQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation("tenantId required"))
		return uuid.Nil, false
	}
	tenantID, err := uuid.Parse(q.TenantID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid tenantId"))
		return uuid.Nil, false
	}
	return tenantID, true
}
