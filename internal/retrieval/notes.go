package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const noteSeparator = "\n\n"

// Note is one source's contribution to a summary.
type Note struct {
	Source       string
	Title        string
	LastModified time.Time
	Content      string
}

// CollectNotes groups results by source in rank order of each source's best
// hit. At most perSource chunks are kept per source, joined in chunk order.
func CollectNotes(results []model.SearchResult, perSource int) []Note {
	if perSource <= 0 {
		perSource = 1
	}
	var order []string
	groups := make(map[string][]model.SearchResult)
	for _, r := range results {
		src := r.Metadata.Source
		if src == "" {
			continue
		}
		hits, ok := groups[src]
		if !ok {
			order = append(order, src)
		}
		if len(hits) >= perSource {
			continue
		}
		groups[src] = append(hits, r)
	}
	notes := make([]Note, 0, len(order))
	for _, src := range order {
		hits := groups[src]
		first := hits[0].Metadata
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].Metadata.ChunkID < hits[j].Metadata.ChunkID
		})
		parts := make([]string, 0, len(hits))
		for _, h := range hits {
			parts = append(parts, h.Content)
		}
		notes = append(notes, Note{
			Source:       src,
			Title:        first.Title,
			LastModified: first.LastModified,
			Content:      strings.Join(parts, "\n\n"),
		})
	}
	return notes
}

// FormatNotes renders the note blocks handed to the summary prompt.
func FormatNotes(notes []Note) string {
	blocks := make([]string, 0, len(notes))
	for i, n := range notes {
		blocks = append(blocks, noteBlock(i, n))
	}
	return strings.Join(blocks, noteSeparator)
}

// FitNotes keeps the leading notes whose rendered blocks fit in maxRunes.
// Notes are never cut; the first one is always kept. maxRunes <= 0 keeps all.
func FitNotes(notes []Note, maxRunes int) []Note {
	if maxRunes <= 0 {
		return notes
	}
	used := 0
	for i, n := range notes {
		size := utf8.RuneCountInString(noteBlock(i, n))
		if i > 0 {
			size += len(noteSeparator)
			if used+size > maxRunes {
				return notes[:i]
			}
		}
		used += size
	}
	return notes
}

func noteBlock(i int, n Note) string {
	ts := UnknownTime
	if !n.LastModified.IsZero() {
		ts = model.FormatTime(n.LastModified)
	}
	return fmt.Sprintf("--- Note %d: %s ---\nSource: %s\nLast Modified: %s\n\n%s",
		i+1, orDefault(n.Title, Untitled), n.Source, ts, n.Content)
}
