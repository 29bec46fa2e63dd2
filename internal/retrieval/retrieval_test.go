package retrieval

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

func hit(source, content string, chunk int) model.SearchResult {
	return model.SearchResult{Content: content, Metadata: model.Metadata{Source: source, ChunkID: chunk, TotalChunks: 3}}
}

func TestSourcesDedupFirstSeen(t *testing.T) {
	results := []model.SearchResult{hit("b.md", "1", 0), hit("a.md", "2", 0), hit("b.md", "3", 1), hit("", "4", 0)}
	ctx := Build(results)
	require.Equal(t, []string{"b.md", "a.md"}, ctx.Sources)
	require.Len(t, ctx.Results, 4)
}

func TestFormatQA(t *testing.T) {
	out := FormatQA([]model.SearchResult{hit("a.md", "alpha", 0), hit("", "beta", 0)})
	require.Equal(t, "Source: a.md\nContent: alpha\n\n---\n\nSource: Unknown\nContent: beta", out)
	require.Empty(t, FormatQA(nil))
}

func TestSourcesTrailer(t *testing.T) {
	require.Equal(t, "\n\nSources: a.md, b.md", SourcesTrailer([]string{"a.md", "b.md"}))
	require.Equal(t, "\n\nSources: No sources found", SourcesTrailer(nil))
}

func TestCollectNotes(t *testing.T) {
	mod := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	first := hit("a.md", "a-second", 1)
	first.Metadata.Title = "Alpha"
	first.Metadata.LastModified = mod
	results := []model.SearchResult{first, hit("b.md", "b-first", 0), hit("a.md", "a-first", 0), hit("a.md", "a-third", 2)}

	notes := CollectNotes(results, 1)
	require.Len(t, notes, 2)
	assert.Equal(t, "a.md", notes[0].Source)
	assert.Equal(t, "a-second", notes[0].Content)
	assert.Equal(t, "Alpha", notes[0].Title)
	assert.Equal(t, "b.md", notes[1].Source)

	notes = CollectNotes(results, 2)
	require.Len(t, notes, 2)
	assert.Equal(t, "a-first\n\na-second", notes[0].Content)
	assert.Equal(t, mod, notes[0].LastModified)

	require.Empty(t, CollectNotes(nil, 0))
}

func TestFormatNotes(t *testing.T) {
	mod := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	out := FormatNotes([]Note{
		{Source: "a.md", Title: "Alpha", LastModified: mod, Content: "body a"},
		{Source: "b.md", Content: "body b"},
	})
	require.Equal(t,
		"--- Note 1: Alpha ---\nSource: a.md\nLast Modified: 2026-04-01T08:00:00Z\n\nbody a\n\n"+
			"--- Note 2: Untitled ---\nSource: b.md\nLast Modified: Unknown\n\nbody b",
		out)
}

func TestRecentUpdates(t *testing.T) {
	older := hit("old.md", "old content", 0)
	older.Metadata.LastModified = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	newer := hit("new.md", strings.Repeat("é", 250), 0)
	newer.Metadata.LastModified = time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	newer.Metadata.Title = "New"
	dup := hit("old.md", "other chunk", 1)

	updates := RecentUpdates([]model.SearchResult{older, dup, newer})
	require.Len(t, updates, 2)
	assert.Equal(t, "new.md", updates[0].Source)
	assert.Equal(t, "New", updates[0].Title)
	assert.Equal(t, strings.Repeat("é", 200)+"...", updates[0].Snippet)
	assert.Equal(t, "old.md", updates[1].Source)
	assert.Equal(t, "Untitled", updates[1].Title)
	assert.Equal(t, "old content...", updates[1].Snippet)
	assert.Equal(t, "2026-04-01T00:00:00Z", updates[1].LastModified)
}

func TestFitResultsKeepsWholeChunks(t *testing.T) {
	results := []model.SearchResult{hit("a.md", "xxxx", 0), hit("b.md", "yyyy", 0), hit("c.md", "zzzz", 0)}
	// each block is "Source: a.md\nContent: xxxx" (26 runes), joined by a 7 rune separator
	require.Len(t, FitResults(results, 59), 2)
	require.Len(t, FitResults(results, 58), 1)
	require.Len(t, FitResults(results, 1), 1)
	require.Len(t, FitResults(results, 0), 3)
	require.Len(t, FitResults(results, 1000), 3)
	require.Equal(t, "Source: a.md\nContent: xxxx\n\n---\n\nSource: b.md\nContent: yyyy", FormatQA(FitResults(results, 59)))
}

func TestFitNotesKeepsWholeNotes(t *testing.T) {
	notes := make([]Note, 0, 30)
	for i := 1; i <= 30; i++ {
		notes = append(notes, Note{Source: "n" + strings.Repeat("0", i%3) + ".md", Content: strings.Repeat("w", 950)})
	}
	const budget = 20000
	kept := FitNotes(notes, budget)
	require.NotEmpty(t, kept)
	require.Less(t, len(kept), len(notes))
	assert.LessOrEqual(t, len([]rune(FormatNotes(kept))), budget)
	assert.Greater(t, len([]rune(FormatNotes(notes[:len(kept)+1]))), budget)
	assert.True(t, strings.HasSuffix(FormatNotes(kept), strings.Repeat("w", 950)))

	require.Len(t, FitNotes(notes, 0), 30)
	require.Len(t, FitNotes(notes[:1], 10), 1)
}
