package handler

import (
	"io"

	"shop-ingest/internal/adapter/http/dto"
	"shop-ingest/internal/adapter/http/middleware"
	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/core/ports"
	"shop-ingest/pkg/apperror"
	"shop-ingest/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler receives push-based change events from the platform.
type WebhookHandler struct {
	ingestor ports.WebhookIngestor
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(ingestor ports.WebhookIngestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// Receive handles POST /webhooks/:resource.
// The raw body is passed through untouched; the signature covers its exact bytes.
func (h *WebhookHandler) Receive(c *gin.Context) {
	resource, err := domain.ParseResource(c.Param("resource"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidResource(c.Param("resource")))
		return
	}

	var headers dto.WebhookHeaders
	if err := c.ShouldBindHeader(&headers); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if headers.Topic != "" {
		topicResource, err := domain.ResourceForTopic(headers.Topic)
		if err != nil || topicResource != resource {
			response.Error(c, apperror.Validation("topic does not match resource"))
			return
		}
	}

	var q dto.WebhookQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation("invalid tenantId"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			response.Error(c, apperror.ErrPayloadTooLarge())
			return
		}
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	req := ports.WebhookRequest{
		Topic:      headers.Topic,
		Resource:   resource,
		ShopDomain: headers.ShopDomain,
		Signature:  headers.Signature,
		DeliveryID: headers.DeliveryKey(),
		Body:       body,
	}
	if q.TenantID != "" {
		tenantID := uuid.MustParse(q.TenantID)
		req.TenantID = &tenantID
	}

	outcome, err := h.ingestor.Ingest(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if outcome.Duplicate {
		response.OK(c, dto.OKResponse{OK: true, Note: "duplicate"})
		return
	}
	response.OK(c, dto.OKResponse{OK: true})
}
