package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// GatewayHandlers exposes the ingest entrypoint: classify inbound
// content and route it to a processing agent. This is the HTTP-facing
// counterpart of the email/WhatsApp webhook adapters.
type GatewayHandlers struct {
	gateway services.GatewayService
}

func NewGatewayHandlers(gateway services.GatewayService) *GatewayHandlers {
	return &GatewayHandlers{gateway: gateway}
}

func (h *GatewayHandlers) Ingest(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	artifact, err := h.gateway.Ingest(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "failed to ingest content", err)
		return
	}
	c.JSON(http.StatusAccepted, artifact)
}

func (h *GatewayHandlers) Classify(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	contentType, agentKind := h.gateway.Classify(req)
	c.JSON(http.StatusOK, gin.H{"content_type": contentType, "target_agent": agentKind})
}
