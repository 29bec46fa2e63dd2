package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const (
	defaultSearchK    = 5
	maxSearchK        = 50
	defaultRecentDays = 7
)

type QA interface {
	Answer(ctx context.Context, question string, limit int) *model.Answer
	Search(ctx context.Context, query string, k int, filter *model.Filter) ([]model.SearchResult, error)
	RecentUpdates(ctx context.Context, days int) ([]model.RecentUpdate, error)
}

type Summaries interface {
	Generate(ctx context.Context, windowDays int) *model.Summary
}

type Deps struct {
	QA        QA
	Summaries Summaries
	Version   string
}

// New builds the MCP server exposing the knowledge base as tools.
func New(deps Deps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"personal-knowledge-agent",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("Personal knowledge base built from the user's notes: ask questions, search notes, list recent updates and produce digests."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the user's notes and cite the source files."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Number of note chunks to retrieve (default 5)")),
		),
		askHandler(deps),
	)
	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Semantic search over the notes, returning matching chunks with their metadata and score."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("k", mcp.Description("Maximum number of results (default 5, max 50)")),
			mcp.WithString("source", mcp.Description("Restrict to one note file, relative path")),
			mcp.WithString("file_type", mcp.Description("Restrict to a file type such as md or pdf")),
			mcp.WithObject("filter", mcp.Description("Metadata filter: a scalar value matches exactly, a list matches any of its values")),
		),
		searchHandler(deps),
	)
	s.AddTool(
		mcp.NewTool("summarize",
			mcp.WithDescription("Summarize notes ingested in the last days and save the digest."),
			mcp.WithNumber("window_days", mcp.Description("Window in days (default 1)")),
		),
		summarizeHandler(deps),
	)
	s.AddTool(
		mcp.NewTool("recent_updates",
			mcp.WithDescription("List notes modified in the last days, newest first."),
			mcp.WithNumber("days", mcp.Description("Window in days (default 7)")),
		),
		recentHandler(deps),
	)
	return s
}

func askHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcpError("question is required"), nil
		}
		ans := deps.QA.Answer(ctx, question, req.GetInt("limit", 0))
		if ans.Failed() {
			return mcpError(ans.Text), nil
		}
		return mcpText(ans.Text), nil
	}
}

func searchHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		k := req.GetInt("k", defaultSearchK)
		if k <= 0 {
			k = defaultSearchK
		}
		if k > maxSearchK {
			k = maxSearchK
		}
		filter := model.NewFilter()
		if raw, ok := req.GetArguments()["filter"].(map[string]interface{}); ok {
			if f := model.FilterFromMap(raw); f != nil {
				filter = f
			}
		}
		if source := req.GetString("source", ""); source != "" {
			filter.Match(model.MetaSource, source)
		}
		if fileType := req.GetString("file_type", ""); fileType != "" {
			filter.Match(model.MetaFileType, strings.TrimPrefix(fileType, "."))
		}
		if filter.IsEmpty() {
			filter = nil
		}
		results, err := deps.QA.Search(ctx, query, k, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		type hit struct {
			Source  string  `json:"source"`
			Title   string  `json:"title,omitempty"`
			ChunkID int     `json:"chunk_id"`
			Score   float32 `json:"score"`
			Content string  `json:"content"`
		}
		hits := make([]hit, 0, len(results))
		for _, r := range results {
			hits = append(hits, hit{
				Source:  r.Metadata.Source,
				Title:   r.Metadata.Title,
				ChunkID: r.Metadata.ChunkID,
				Score:   r.Score,
				Content: r.Content,
			})
		}
		return mcpJSON(hits)
	}
}

func summarizeHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Summaries == nil {
			return mcpError("summaries are not available"), nil
		}
		sum := deps.Summaries.Generate(ctx, req.GetInt("window_days", 1))
		if sum.Failed() {
			return mcpError(sum.Text), nil
		}
		text := sum.Text
		if sum.Persisted {
			text += "\n\nSaved as " + sum.Key
		}
		return mcpText(text), nil
	}
}

func recentHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days := req.GetInt("days", defaultRecentDays)
		if days <= 0 {
			return mcpError("days must be positive"), nil
		}
		updates, err := deps.QA.RecentUpdates(ctx, days)
		if err != nil {
			return mcpError(fmt.Sprintf("recent updates failed: %v", err)), nil
		}
		if updates == nil {
			updates = []model.RecentUpdate{}
		}
		return mcpJSON(updates)
	}
}

func mcpJSON(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
