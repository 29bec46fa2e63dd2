package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/filestore"
	"github.com/sadjad6/personal-knowledge-agent/internal/handler"
	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/errcode"
	appErr "github.com/sadjad6/personal-knowledge-agent/internal/pkg/errors"
	"github.com/sadjad6/personal-knowledge-agent/internal/schedule"
	"github.com/sadjad6/personal-knowledge-agent/internal/service"
)

type fakeQA struct {
	query  string
	k      int
	filter *model.Filter
	days   int
	err    error
}

func (f *fakeQA) Answer(ctx context.Context, question string, limit int) *model.Answer {
	f.query, f.k = question, limit
	return &model.Answer{Question: question, Text: "yes\n\nSources: a.md", Sources: []string{"a.md"}, Status: model.AnswerOK}
}

func (f *fakeQA) Search(ctx context.Context, query string, k int, filter *model.Filter) ([]model.SearchResult, error) {
	f.query, f.k, f.filter = query, k, filter
	if f.err != nil {
		return nil, f.err
	}
	return []model.SearchResult{{Content: "alpha", Score: 0.5, Metadata: model.Metadata{Source: "a.md", FileType: "md"}}}, nil
}

func (f *fakeQA) RecentUpdates(ctx context.Context, days int) ([]model.RecentUpdate, error) {
	f.days = days
	return nil, f.err
}

type fakeSummaries struct {
	sum  *model.Summary
	days int
}

func (f *fakeSummaries) Generate(ctx context.Context, windowDays int) *model.Summary {
	f.days = windowDays
	return f.sum
}

func (f *fakeSummaries) List(ctx context.Context) ([]filestore.Object, error) {
	return []filestore.Object{{Key: "summary_b.md"}, {Key: "summary_a.md"}}, nil
}

func (f *fakeSummaries) Read(ctx context.Context, key string) (string, error) {
	if key != "summary_a.md" {
		return "", appErr.ErrNotFound
	}
	return "# Daily Summary", nil
}

type fakeIngest struct{ paths []string }

func (f *fakeIngest) Ingest(ctx context.Context, paths []string) (*model.IngestReport, error) {
	f.paths = paths
	return &model.IngestReport{Documents: len(paths), Chunks: 3}, nil
}

type fakeStatus struct{}

func (fakeStatus) Status(ctx context.Context) *service.StatusReport {
	return &service.StatusReport{Collection: &model.CollectionInfo{Name: "c", Status: "green"}}
}

type fakeJobs struct{ err error }

func (f fakeJobs) Entries() []schedule.Entry {
	return []schedule.Entry{{Name: "daily_summary", Spec: "0 20 * * *"}}
}

func (f fakeJobs) Trigger(ctx context.Context, name string) error {
	return f.err
}

type env struct {
	router    *gin.Engine
	qa        *fakeQA
	summaries *fakeSummaries
	ingest    *fakeIngest
}

func newEnv(t *testing.T, jobs fakeJobs) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		router:    gin.New(),
		qa:        &fakeQA{},
		summaries: &fakeSummaries{sum: &model.Summary{Text: "digest", Status: model.SummaryOK, Persisted: true, Key: "summary_x.md"}},
		ingest:    &fakeIngest{},
	}
	handler.RegisterRoutes(e.router.Group("/api/v1"), handler.RouterDeps{
		QA:        handler.NewQAHandler(e.qa),
		Summaries: handler.NewSummaryHandler(e.summaries),
		Ingest:    handler.NewIngestHandler(e.ingest),
		System:    handler.NewSystemHandler(fakeStatus{}, jobs),
		RateLimit: time.Hour,
	})
	return e
}

type apiResponse struct {
	Code uint32          `json:"code"`
	Data json.RawMessage `json:"data"`
}

func (e *env) do(t *testing.T, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var out apiResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestAsk(t *testing.T) {
	e := newEnv(t, fakeJobs{})
	resp := e.do(t, http.MethodGet, "/api/v1/ask?q=anything&limit=99", nil)
	require.Zero(t, resp.Code)
	require.Equal(t, 20, e.qa.k)
	var ans model.Answer
	require.NoError(t, json.Unmarshal(resp.Data, &ans))
	require.Equal(t, "yes\n\nSources: a.md", ans.Text)
	require.Equal(t, model.AnswerOK, ans.Status)

	resp = e.do(t, http.MethodGet, "/api/v1/ask", nil)
	require.EqualValues(t, errcode.ErrInvalid, resp.Code)
	resp = e.do(t, http.MethodGet, "/api/v1/ask?q=x&limit=abc", nil)
	require.EqualValues(t, errcode.ErrInvalid, resp.Code)
}

func TestSearchFilters(t *testing.T) {
	e := newEnv(t, fakeJobs{})
	resp := e.do(t, http.MethodGet, "/api/v1/search?q=plans&k=3&source=a.md&source=b.md&file_type=.MD", nil)
	require.Zero(t, resp.Code)
	require.Equal(t, 3, e.qa.k)
	require.Equal(t, []model.Condition{
		{Key: model.MetaSource, Values: []interface{}{"a.md", "b.md"}},
		{Key: model.MetaFileType, Values: []interface{}{"md"}},
	}, e.qa.filter.Conditions)
	var data struct {
		Results []struct {
			Content  string                 `json:"content"`
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Len(t, data.Results, 1)
	require.Equal(t, "a.md", data.Results[0].Metadata["source"])

	e.do(t, http.MethodGet, "/api/v1/search?q=plans", nil)
	require.Nil(t, e.qa.filter)

	e.qa.err = errors.New("connection refused")
	resp = e.do(t, http.MethodGet, "/api/v1/search?q=plans", nil)
	require.EqualValues(t, errcode.ErrInternal, resp.Code)
}

func TestRecent(t *testing.T) {
	e := newEnv(t, fakeJobs{})
	resp := e.do(t, http.MethodGet, "/api/v1/recent", nil)
	require.Zero(t, resp.Code)
	require.Equal(t, 7, e.qa.days)
	require.JSONEq(t, `{"updates":[]}`, string(resp.Data))
}

func TestSummaries(t *testing.T) {
	e := newEnv(t, fakeJobs{})
	resp := e.do(t, http.MethodPost, "/api/v1/summarize", map[string]int{"window_days": 3})
	require.Zero(t, resp.Code)
	require.Equal(t, 3, e.summaries.days)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Equal(t, "digest", data["summary"])
	require.Equal(t, "summary_x.md", data["file"])

	// rate limited within the window
	resp = e.do(t, http.MethodPost, "/api/v1/summarize", nil)
	require.EqualValues(t, errcode.ErrTooMany, resp.Code)

	resp = e.do(t, http.MethodGet, "/api/v1/summaries", nil)
	require.Zero(t, resp.Code)
	resp = e.do(t, http.MethodGet, "/api/v1/summaries/summary_a.md", nil)
	require.Zero(t, resp.Code)
	resp = e.do(t, http.MethodGet, "/api/v1/summaries/summary_z.md", nil)
	require.EqualValues(t, errcode.ErrNotFound, resp.Code)
}

func TestSummarizeFailure(t *testing.T) {
	e := newEnv(t, fakeJobs{})
	e.summaries.sum = &model.Summary{Text: "Error generating daily summary: down", Status: model.SummaryFailed}
	resp := e.do(t, http.MethodPost, "/api/v1/summarize", nil)
	require.EqualValues(t, errcode.ErrSummaryFailed, resp.Code)

	e = newEnv(t, fakeJobs{})
	resp = e.do(t, http.MethodPost, "/api/v1/summarize", map[string]int{"window_days": -1})
	require.EqualValues(t, errcode.ErrInvalid, resp.Code)

	e = newEnv(t, fakeJobs{})
	busyErr := fmt.Errorf("summary: %w", appErr.ErrJobRunning)
	e.summaries.sum = &model.Summary{Text: "Error generating daily summary: " + busyErr.Error(), Status: model.SummaryFailed, Err: busyErr}
	resp = e.do(t, http.MethodPost, "/api/v1/summarize", nil)
	require.EqualValues(t, errcode.ErrJobRunning, resp.Code)
}

func TestIngest(t *testing.T) {
	e := newEnv(t, fakeJobs{})
	resp := e.do(t, http.MethodPost, "/api/v1/ingest", map[string][]string{"paths": {"a.md"}})
	require.Zero(t, resp.Code)
	require.Equal(t, []string{"a.md"}, e.ingest.paths)
	var report model.IngestReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	require.Equal(t, 3, report.Chunks)
}

func TestSystemRoutes(t *testing.T) {
	e := newEnv(t, fakeJobs{})
	resp := e.do(t, http.MethodGet, "/api/v1/health", nil)
	require.JSONEq(t, `{"status":"healthy"}`, string(resp.Data))

	resp = e.do(t, http.MethodGet, "/api/v1/status", nil)
	var report service.StatusReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	require.Equal(t, "green", report.Collection.Status)

	resp = e.do(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Contains(t, string(resp.Data), "daily_summary")

	resp = e.do(t, http.MethodPost, "/api/v1/jobs/daily_summary/trigger", nil)
	require.Zero(t, resp.Code)

	busy := newEnv(t, fakeJobs{err: appErr.ErrJobRunning})
	resp = busy.do(t, http.MethodPost, "/api/v1/jobs/daily_summary/trigger", nil)
	require.EqualValues(t, errcode.ErrJobRunning, resp.Code)

	missing := newEnv(t, fakeJobs{err: appErr.ErrNotFound})
	resp = missing.do(t, http.MethodPost, "/api/v1/jobs/nope/trigger", nil)
	require.EqualValues(t, errcode.ErrNotFound, resp.Code)
}
