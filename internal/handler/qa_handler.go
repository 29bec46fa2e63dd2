package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/errcode"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/response"
)

const (
	maxAskLimit       = 20
	maxSearchK        = 50
	defaultRecentDays = 7
)

type QAService interface {
	Answer(ctx context.Context, question string, limit int) *model.Answer
	Search(ctx context.Context, query string, k int, filter *model.Filter) ([]model.SearchResult, error)
	RecentUpdates(ctx context.Context, days int) ([]model.RecentUpdate, error)
}

type QAHandler struct {
	qa QAService
}

func NewQAHandler(qa QAService) *QAHandler {
	return &QAHandler{qa: qa}
}

// Ask always answers with a body; failed answers carry their status so
// clients can tell them apart from real answers.
func (h *QAHandler) Ask(c *gin.Context) {
	question := strings.TrimSpace(c.Query("q"))
	if question == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	if limit > maxAskLimit {
		limit = maxAskLimit
	}
	response.Success(c, h.qa.Answer(c.Request.Context(), question, limit))
}

type searchHit struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float32                `json:"score"`
}

func (h *QAHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	k, ok := queryInt(c, "k", 0)
	if !ok {
		return
	}
	if k > maxSearchK {
		k = maxSearchK
	}
	filter := model.NewFilter()
	if sources := toInterfaces(c.QueryArray("source")); len(sources) > 0 {
		filter.MatchAny(model.MetaSource, sources...)
	}
	types := c.QueryArray("file_type")
	for i, t := range types {
		types[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), ".")
	}
	if types := toInterfaces(types); len(types) > 0 {
		filter.MatchAny(model.MetaFileType, types...)
	}
	if filter.IsEmpty() {
		filter = nil
	}
	results, err := h.qa.Search(c.Request.Context(), query, k, filter)
	if err != nil {
		handleError(c, err)
		return
	}
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{Content: r.Content, Metadata: r.Metadata.Payload(), Score: r.Score})
	}
	response.Success(c, gin.H{"results": hits})
}

func (h *QAHandler) Recent(c *gin.Context) {
	days, ok := queryInt(c, "days", defaultRecentDays)
	if !ok {
		return
	}
	updates, err := h.qa.RecentUpdates(c.Request.Context(), days)
	if err != nil {
		handleError(c, err)
		return
	}
	if updates == nil {
		updates = []model.RecentUpdate{}
	}
	response.Success(c, gin.H{"updates": updates})
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
