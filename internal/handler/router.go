package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sadjad6/personal-knowledge-agent/internal/middleware"
)

type RouterDeps struct {
	QA        *QAHandler
	Summaries *SummaryHandler
	Ingest    *IngestHandler
	System    *SystemHandler
	// RateLimit throttles the expensive write endpoints per client.
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	limited := middleware.RateLimit(deps.RateLimit)

	api.GET("/health", deps.System.Health)
	api.GET("/status", deps.System.Status)
	api.GET("/jobs", deps.System.Jobs)
	api.POST("/jobs/:name/trigger", limited, deps.System.TriggerJob)

	api.GET("/ask", deps.QA.Ask)
	api.GET("/search", deps.QA.Search)
	api.GET("/recent", deps.QA.Recent)

	api.POST("/summarize", limited, deps.Summaries.Summarize)
	api.GET("/summaries", deps.Summaries.List)
	api.GET("/summaries/:key", deps.Summaries.Get)

	api.POST("/ingest", limited, deps.Ingest.Ingest)
}
