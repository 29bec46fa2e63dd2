package retrieval

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const (
	UnknownSource   = "Unknown"
	Untitled        = "Untitled"
	UnknownTime     = "Unknown"
	blockSeparator  = "\n\n---\n\n"
	noSources       = "No sources found"
	snippetRunes    = 200
	snippetEllipsis = "..."
)

// Build collects the results and their distinct sources in rank order.
func Build(results []model.SearchResult) model.RetrievalContext {
	return model.RetrievalContext{Results: results, Sources: Sources(results)}
}

// Sources lists distinct non-empty sources, first-seen first.
func Sources(results []model.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		src := r.Metadata.Source
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// FormatQA renders the context block handed to the answer prompt.
func FormatQA(results []model.SearchResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, qaBlock(r))
	}
	return strings.Join(blocks, blockSeparator)
}

// FitResults keeps the leading results whose context blocks fit in maxRunes.
// Chunks are never cut; the first one is always kept. maxRunes <= 0 keeps all.
func FitResults(results []model.SearchResult, maxRunes int) []model.SearchResult {
	if maxRunes <= 0 {
		return results
	}
	used := 0
	for i, r := range results {
		size := utf8.RuneCountInString(qaBlock(r))
		if i > 0 {
			size += len(blockSeparator)
			if used+size > maxRunes {
				return results[:i]
			}
		}
		used += size
	}
	return results
}

func qaBlock(r model.SearchResult) string {
	src := r.Metadata.Source
	if src == "" {
		src = UnknownSource
	}
	return "Source: " + src + "\nContent: " + r.Content
}

func SourcesTrailer(sources []string) string {
	if len(sources) == 0 {
		return "\n\nSources: " + noSources
	}
	return "\n\nSources: " + strings.Join(sources, ", ")
}

// RecentUpdates keeps one entry per source, newest modification first.
func RecentUpdates(results []model.SearchResult) []model.RecentUpdate {
	type entry struct {
		update model.RecentUpdate
		mtime  int64
		rank   int
	}
	seen := make(map[string]struct{}, len(results))
	entries := make([]entry, 0, len(results))
	for i, r := range results {
		md := r.Metadata
		if md.Source == "" {
			continue
		}
		if _, ok := seen[md.Source]; ok {
			continue
		}
		seen[md.Source] = struct{}{}
		e := entry{
			update: model.RecentUpdate{
				Source:       md.Source,
				Title:        orDefault(md.Title, Untitled),
				LastModified: UnknownTime,
				Snippet:      Snippet(r.Content),
			},
			rank: i,
		}
		if !md.LastModified.IsZero() {
			e.update.LastModified = model.FormatTime(md.LastModified)
			e.mtime = md.LastModified.UnixNano()
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].mtime > entries[j].mtime
	})
	out := make([]model.RecentUpdate, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.update)
	}
	return out
}

// Snippet returns the first 200 runes followed by an ellipsis.
func Snippet(content string) string {
	runes := []rune(content)
	if len(runes) > snippetRunes {
		runes = runes[:snippetRunes]
	}
	return string(runes) + snippetEllipsis
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
