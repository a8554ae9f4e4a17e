package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// ComponentHandlers exposes the Prompt Component System over HTTP:
// CRUD, rendering, validation, versioning, and test-run endpoints.
type ComponentHandlers struct {
	components services.ComponentService
}

func NewComponentHandlers(components services.ComponentService) *ComponentHandlers {
	return &ComponentHandlers{components: components}
}

func (h *ComponentHandlers) Create(c *gin.Context) {
	var req models.CreateComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	component, err := h.components.Create(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "failed to create component", err)
		return
	}
	c.JSON(http.StatusCreated, component)
}

func (h *ComponentHandlers) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	component, err := h.components.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "failed to get component", err)
		return
	}
	c.JSON(http.StatusOK, component)
}

func (h *ComponentHandlers) GetByName(c *gin.Context) {
	component, err := h.components.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondServiceError(c, "failed to get component", err)
		return
	}
	c.JSON(http.StatusOK, component)
}

func (h *ComponentHandlers) List(c *gin.Context) {
	var filter models.ComponentListFilter
	filter.Search = c.Query("search")
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

	response, err := h.components.List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, "failed to list components", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ComponentHandlers) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	var req models.UpdateComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	component, err := h.components.Update(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, "failed to update component", err)
		return
	}
	c.JSON(http.StatusOK, component)
}

func (h *ComponentHandlers) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	archivedVersionID, err := h.components.Delete(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "failed to delete component", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived_version_id": archivedVersionID})
}

func (h *ComponentHandlers) Duplicate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	var body struct {
		NewName string `json:"new_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	component, err := h.components.Duplicate(c.Request.Context(), id, body.NewName)
	if err != nil {
		respondServiceError(c, "failed to duplicate component", err)
		return
	}
	c.JSON(http.StatusCreated, component)
}

func (h *ComponentHandlers) Render(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	var body struct {
		Inputs map[string]string `json:"inputs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	rendered, err := h.components.Render(c.Request.Context(), id, body.Inputs)
	if err != nil {
		respondServiceError(c, "failed to render component", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rendered": rendered})
}

func (h *ComponentHandlers) Validate(c *gin.Context) {
	var body struct {
		Template string `json:"template" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.components.Validate(c.Request.Context(), body.Template)
	if err != nil {
		respondServiceError(c, "failed to validate template", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ComponentHandlers) Versions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	versions, err := h.components.Versions(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "failed to list versions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (h *ComponentHandlers) GetVersion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	version, err := h.components.GetVersion(c.Request.Context(), id, c.Param("version"))
	if err != nil {
		respondServiceError(c, "failed to get version", err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *ComponentHandlers) Compare(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	diff, err := h.components.Compare(c.Request.Context(), id, c.Query("from"), c.Query("to"))
	if err != nil {
		respondServiceError(c, "failed to compare versions", err)
		return
	}
	c.JSON(http.StatusOK, diff)
}

func (h *ComponentHandlers) Export(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	data, err := h.components.Export(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "failed to export component", err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (h *ComponentHandlers) Import(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body", "details": err.Error()})
		return
	}

	overwrite := c.Query("overwrite") == "true"
	component, err := h.components.Import(c.Request.Context(), data, overwrite)
	if err != nil {
		respondServiceError(c, "failed to import component", err)
		return
	}
	c.JSON(http.StatusCreated, component)
}

func (h *ComponentHandlers) TestRender(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	var body struct {
		Inputs map[string]string `json:"inputs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.components.TestRender(c.Request.Context(), id, body.Inputs)
	if err != nil {
		respondServiceError(c, "failed to test-render component", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ComponentHandlers) TestWithProvider(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid component id"})
		return
	}

	var body struct {
		Inputs map[string]string `json:"inputs"`
		Task   string            `json:"task"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.components.TestWithProvider(c.Request.Context(), id, body.Inputs, body.Task)
	if err != nil {
		respondServiceError(c, "failed to test component with provider", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ComponentHandlers) CompareTestResults(c *gin.Context) {
	result1, err := uuid.Parse(c.Query("result1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result1"})
		return
	}
	result2, err := uuid.Parse(c.Query("result2"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result2"})
		return
	}

	diff, err := h.components.CompareTestResults(c.Request.Context(), result1, result2)
	if err != nil {
		respondServiceError(c, "failed to compare test results", err)
		return
	}
	c.JSON(http.StatusOK, diff)
}
