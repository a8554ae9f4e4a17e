package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// RouterHandlers exposes the Model Router directly for ad-hoc calls
// (manual testing, component test-with-provider from the UI) outside the
// agent pipelines that call RouterService.Route internally.
type RouterHandlers struct {
	router services.RouterService
}

func NewRouterHandlers(router services.RouterService) *RouterHandlers {
	return &RouterHandlers{router: router}
}

func (h *RouterHandlers) Route(c *gin.Context) {
	var req models.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.router.Route(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "routing failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RouterHandlers) LocalAvailability(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"local_available": h.router.IsLocalAvailable(c.Request.Context())})
}
