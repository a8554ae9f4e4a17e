package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// SchedulerHandlers exposes digest-schedule CRUD over HTTP. The tick loop
// itself runs in the background; these endpoints only manage the
// durable ScheduledJob rows it reads.
type SchedulerHandlers struct {
	scheduler services.SchedulerService
}

func NewSchedulerHandlers(scheduler services.SchedulerService) *SchedulerHandlers {
	return &SchedulerHandlers{scheduler: scheduler}
}

func (h *SchedulerHandlers) Schedule(c *gin.Context) {
	var req models.CreateScheduledJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	job, err := h.scheduler.Schedule(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "failed to schedule job", err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *SchedulerHandlers) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	var req models.UpdateScheduledJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	job, err := h.scheduler.UpdateJob(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, "failed to update job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *SchedulerHandlers) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := h.scheduler.CancelJob(c.Request.Context(), id); err != nil {
		respondServiceError(c, "failed to cancel job", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SchedulerHandlers) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.scheduler.GetJob(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "failed to get job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *SchedulerHandlers) List(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"
	jobs, err := h.scheduler.ListJobs(c.Request.Context(), activeOnly)
	if err != nil {
		respondServiceError(c, "failed to list jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
