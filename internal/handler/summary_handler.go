package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/sadjad6/personal-knowledge-agent/internal/filestore"
	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/errcode"
	appErr "github.com/sadjad6/personal-knowledge-agent/internal/pkg/errors"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/response"
)

const maxWindowDays = 365

type SummaryService interface {
	Generate(ctx context.Context, windowDays int) *model.Summary
	List(ctx context.Context) ([]filestore.Object, error)
	Read(ctx context.Context, key string) (string, error)
}

type SummaryHandler struct {
	summaries SummaryService
}

func NewSummaryHandler(summaries SummaryService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries}
}

type summarizeRequest struct {
	WindowDays int `json:"window_days"`
}

func (h *SummaryHandler) Summarize(c *gin.Context) {
	var req summarizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	if req.WindowDays < 0 || req.WindowDays > maxWindowDays {
		response.Error(c, errcode.ErrInvalid, "invalid window_days")
		return
	}
	sum := h.summaries.Generate(c.Request.Context(), req.WindowDays)
	if sum.Failed() && errors.Is(sum.Err, appErr.ErrJobRunning) {
		handleError(c, sum.Err)
		return
	}
	if sum.Failed() {
		response.Error(c, errcode.ErrSummaryFailed, sum.Text)
		return
	}
	out := gin.H{
		"summary":    sum.Text,
		"status":     sum.Status,
		"note_count": sum.NoteCount,
		"persisted":  sum.Persisted,
		"file":       sum.Key,
	}
	if sum.PersistErr != nil {
		out["persist_error"] = sum.PersistErr.Error()
	}
	response.Success(c, out)
}

func (h *SummaryHandler) List(c *gin.Context) {
	objs, err := h.summaries.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	if objs == nil {
		objs = []filestore.Object{}
	}
	response.Success(c, gin.H{"summaries": objs})
}

func (h *SummaryHandler) Get(c *gin.Context) {
	key := c.Param("key")
	text, err := h.summaries.Read(c.Request.Context(), key)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"file": key, "content": text})
}
