package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// AgentHandlers exposes the agent registry over HTTP: registration,
// discovery, capability listing, and deregistration. Live execution goes
// through GatewayHandlers, not through this registry directly.
type AgentHandlers struct {
	agents services.AgentRegistry
}

func NewAgentHandlers(agents services.AgentRegistry) *AgentHandlers {
	return &AgentHandlers{agents: agents}
}

func (h *AgentHandlers) Register(c *gin.Context) {
	var req models.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	descriptor, err := h.agents.Register(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "failed to register agent", err)
		return
	}
	c.JSON(http.StatusCreated, descriptor)
}

func (h *AgentHandlers) Get(c *gin.Context) {
	descriptor, err := h.agents.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondServiceError(c, "failed to get agent", err)
		return
	}
	c.JSON(http.StatusOK, descriptor)
}

func (h *AgentHandlers) List(c *gin.Context) {
	var filter models.AgentListFilter
	filter.Search = c.Query("search")
	if kind := c.Query("kind"); kind != "" {
		k := models.AgentKind(kind)
		filter.Kind = &k
	}
	if status := c.Query("status"); status != "" {
		s := models.AgentStatus(status)
		filter.Status = &s
	}
	if tags := c.QueryArray("tags"); len(tags) > 0 {
		filter.Tags = tags
	}
	if pageStr := c.Query("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil {
			filter.Page = page
		}
	}
	if sizeStr := c.Query("size"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil {
			filter.Size = size
		}
	}

	response, err := h.agents.List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, "failed to list agents", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *AgentHandlers) Instances(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instances": h.agents.Instances()})
}

func (h *AgentHandlers) Capabilities(c *gin.Context) {
	capabilities, err := h.agents.Capabilities(c.Request.Context())
	if err != nil {
		respondServiceError(c, "failed to list agent capabilities", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": capabilities})
}

func (h *AgentHandlers) Deregister(c *gin.Context) {
	if err := h.agents.Deregister(c.Request.Context(), c.Param("name")); err != nil {
		respondServiceError(c, "failed to deregister agent", err)
		return
	}
	c.Status(http.StatusNoContent)
}
