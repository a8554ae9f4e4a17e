package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// ArtifactHandlers exposes read access to the durable ContentArtifact
// archive, for inspecting what the Gateway and processing agents have
// produced.
type ArtifactHandlers struct {
	artifacts services.ArtifactStore
}

func NewArtifactHandlers(artifacts services.ArtifactStore) *ArtifactHandlers {
	return &ArtifactHandlers{artifacts: artifacts}
}

func (h *ArtifactHandlers) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artifact id"})
		return
	}

	artifact, err := h.artifacts.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "failed to get artifact", err)
		return
	}
	c.JSON(http.StatusOK, artifact)
}

func (h *ArtifactHandlers) List(c *gin.Context) {
	var filter models.ArtifactListFilter
	for _, ct := range c.QueryArray("content_type") {
		filter.ContentTypes = append(filter.ContentTypes, models.ContentType(ct))
	}
	if tags := c.QueryArray("tags"); len(tags) > 0 {
		filter.Tags = tags
	}
	if status := c.Query("status"); status != "" {
		s := models.ArtifactStatus(status)
		filter.Status = &s
	}
	if sinceStr := c.Query("since"); sinceStr != "" {
		if since, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = &since
		}
	}
	if untilStr := c.Query("until"); untilStr != "" {
		if until, err := time.Parse(time.RFC3339, untilStr); err == nil {
			filter.Until = &until
		}
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

	response, err := h.artifacts.List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, "failed to list artifacts", err)
		return
	}
	c.JSON(http.StatusOK, response)
}
