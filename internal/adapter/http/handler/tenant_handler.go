package handler

import (
	"errors"
	"io"

	"shop-ingest/internal/adapter/http/dto"
	"shop-ingest/internal/core/ports"
	"shop-ingest/pkg/apperror"
	"shop-ingest/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TenantHandler exposes operator actions on existing tenants.
type TenantHandler struct {
	tenantSvc ports.TenantService
	publicURL string
}

// NewTenantHandler creates a new TenantHandler. publicURL is the base URL the
// platform should deliver webhooks to when a request names none.
func NewTenantHandler(tenantSvc ports.TenantService, publicURL string) *TenantHandler {
	return &TenantHandler{tenantSvc: tenantSvc, publicURL: publicURL}
}

// RegisterWebhooks handles POST /ingest/tenants/:id/webhooks.
func (h *TenantHandler) RegisterWebhooks(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid tenant id"))
		return
	}

	var req dto.RegisterWebhooksRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = h.publicURL
	}

	topics, err := h.tenantSvc.RegisterWebhooks(c.Request.Context(), tenantID, baseURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	if topics == nil {
		topics = []string{}
	}

	response.OK(c, dto.RegisterWebhooksResponse{OK: true, Topics: topics})
}
