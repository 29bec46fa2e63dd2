package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/response"
	"github.com/sadjad6/personal-knowledge-agent/internal/schedule"
	"github.com/sadjad6/personal-knowledge-agent/internal/service"
)

type StatusService interface {
	Status(ctx context.Context) *service.StatusReport
}

// Jobs lists scheduled jobs and runs them on demand. Manual and scheduled
// runs share one running guard.
type Jobs interface {
	Entries() []schedule.Entry
	Trigger(ctx context.Context, name string) error
}

type SystemHandler struct {
	status StatusService
	jobs   Jobs
}

func NewSystemHandler(status StatusService, jobs Jobs) *SystemHandler {
	return &SystemHandler{status: status, jobs: jobs}
}

func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "healthy"})
}

func (h *SystemHandler) Status(c *gin.Context) {
	response.Success(c, h.status.Status(c.Request.Context()))
}

func (h *SystemHandler) Jobs(c *gin.Context) {
	response.Success(c, gin.H{"jobs": h.jobs.Entries()})
}

// TriggerJob runs the job synchronously and reports its outcome.
func (h *SystemHandler) TriggerJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.Trigger(c.Request.Context(), name); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job": name, "status": "completed"})
}
