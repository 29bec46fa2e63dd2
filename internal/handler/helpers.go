package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/ai"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/errcode"
	appErr "github.com/sadjad6/personal-knowledge-agent/internal/pkg/errors"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, err.Error())
	case errors.Is(err, appErr.ErrJobRunning):
		response.Error(c, errcode.ErrJobRunning, err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, err.Error())
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	case errors.Is(err, appErr.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		response.Error(c, errcode.ErrStoreUnavailable, err.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

// queryInt reads an optional integer query parameter. Missing values yield
// def; malformed or negative values are rejected.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		response.Error(c, errcode.ErrInvalid, "invalid "+key)
		return 0, false
	}
	return v, true
}
