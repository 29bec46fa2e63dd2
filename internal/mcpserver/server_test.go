package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

type fakeQA struct {
	answer  *model.Answer
	results []model.SearchResult
	updates []model.RecentUpdate
	err     error

	k      int
	filter *model.Filter
	days   int
}

func (f *fakeQA) Answer(ctx context.Context, question string, limit int) *model.Answer {
	return f.answer
}

func (f *fakeQA) Search(ctx context.Context, query string, k int, filter *model.Filter) ([]model.SearchResult, error) {
	f.k, f.filter = k, filter
	return f.results, f.err
}

func (f *fakeQA) RecentUpdates(ctx context.Context, days int) ([]model.RecentUpdate, error) {
	f.days = days
	return f.updates, f.err
}

type fakeSummaries struct{ sum *model.Summary }

func (f fakeSummaries) Generate(ctx context.Context, windowDays int) *model.Summary {
	return f.sum
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestAskTool(t *testing.T) {
	qa := &fakeQA{answer: &model.Answer{Text: "42\n\nSources: a.md", Status: model.AnswerOK}}
	h := askHandler(Deps{QA: qa})

	res, err := h(context.Background(), call("ask", map[string]interface{}{"question": "meaning?"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "42\n\nSources: a.md", toolText(t, res))

	res, err = h(context.Background(), call("ask", map[string]interface{}{}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	qa.answer = &model.Answer{Text: "I encountered an error while processing your question: down", Status: model.AnswerFailed}
	res, _ = h(context.Background(), call("ask", map[string]interface{}{"question": "q"}))
	require.True(t, res.IsError)
}

func TestSearchTool(t *testing.T) {
	qa := &fakeQA{results: []model.SearchResult{{
		Content:  "alpha",
		Score:    0.9,
		Metadata: model.Metadata{Source: "a.md", TotalChunks: 2, ChunkID: 1},
	}}}
	h := searchHandler(Deps{QA: qa})

	res, err := h(context.Background(), call("search", map[string]interface{}{"query": "x", "k": 500, "file_type": ".md"}))
	require.NoError(t, err)
	require.Equal(t, maxSearchK, qa.k)
	require.Equal(t, []model.Condition{{Key: model.MetaFileType, Values: []interface{}{"md"}}}, qa.filter.Conditions)

	var hits []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &hits))
	require.Len(t, hits, 1)
	require.Equal(t, "a.md", hits[0]["source"])
	require.EqualValues(t, 1, hits[0]["chunk_id"])

	_, _ = h(context.Background(), call("search", map[string]interface{}{"query": "x"}))
	require.Equal(t, defaultSearchK, qa.k)
	require.Nil(t, qa.filter)

	_, _ = h(context.Background(), call("search", map[string]interface{}{
		"query":  "x",
		"filter": map[string]interface{}{"tags": []interface{}{"go", "rust"}, "source": "b.md"},
	}))
	require.Equal(t, []model.Condition{
		{Key: "source", Values: []interface{}{"b.md"}},
		{Key: "tags", Values: []interface{}{"go", "rust"}},
	}, qa.filter.Conditions)

	qa.err = errors.New("store down")
	res, _ = h(context.Background(), call("search", map[string]interface{}{"query": "x"}))
	require.True(t, res.IsError)
	require.Contains(t, toolText(t, res), "store down")
}

func TestSummarizeTool(t *testing.T) {
	h := summarizeHandler(Deps{Summaries: fakeSummaries{sum: &model.Summary{Text: "digest", Status: model.SummaryOK, Persisted: true, Key: "summary_1.md"}}})
	res, err := h(context.Background(), call("summarize", nil))
	require.NoError(t, err)
	require.Equal(t, "digest\n\nSaved as summary_1.md", toolText(t, res))

	h = summarizeHandler(Deps{Summaries: fakeSummaries{sum: &model.Summary{Text: "Error generating daily summary: x", Status: model.SummaryFailed}}})
	res, _ = h(context.Background(), call("summarize", nil))
	require.True(t, res.IsError)
}

func TestRecentUpdatesTool(t *testing.T) {
	qa := &fakeQA{}
	h := recentHandler(Deps{QA: qa})
	res, err := h(context.Background(), call("recent_updates", nil))
	require.NoError(t, err)
	require.Equal(t, defaultRecentDays, qa.days)
	require.Equal(t, "[]", toolText(t, res))

	res, _ = h(context.Background(), call("recent_updates", map[string]interface{}{"days": -1}))
	require.True(t, res.IsError)
}

func TestNewRegistersTools(t *testing.T) {
	tools := New(Deps{QA: &fakeQA{}, Summaries: fakeSummaries{}}).ListTools()
	require.Len(t, tools, 4)
	for _, name := range []string{"ask", "search", "summarize", "recent_updates"} {
		require.Contains(t, tools, name)
	}
}
