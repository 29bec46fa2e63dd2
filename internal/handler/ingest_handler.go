package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/errcode"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/response"
)

const maxIngestPaths = 1000

type IngestService interface {
	Ingest(ctx context.Context, paths []string) (*model.IngestReport, error)
}

type IngestHandler struct {
	ingest IngestService
}

func NewIngestHandler(ingest IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

type ingestRequest struct {
	Paths []string `json:"paths"`
}

// Ingest re-indexes the given relative paths, or the whole notes directory
// when none are given.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	if len(req.Paths) > maxIngestPaths {
		response.Error(c, errcode.ErrInvalid, "too many paths")
		return
	}
	report, err := h.ingest.Ingest(c.Request.Context(), req.Paths)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}
