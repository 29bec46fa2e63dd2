package chunker

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text at the largest separator that still lets pieces fit,
// then merges neighbouring pieces into windows of at most size runes that
// share up to overlap runes with the previous window.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

type Option func(*Splitter)

func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		s.size = size
	}
}

func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		s.separators = separators
	}
}

func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", s.size)
	}
	if s.overlap < 0 || s.overlap >= s.size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", s.overlap, s.size)
	}
	if len(s.separators) == 0 {
		s.separators = DefaultSeparators
	}
	return s, nil
}

func (s *Splitter) ChunkSize() int {
	return s.size
}

func (s *Splitter) Overlap() int {
	return s.overlap
}

// Split returns the chunk texts for text. Output depends only on the input.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

// SplitDocument splits doc and stamps every chunk with its position and the
// ingestion time.
func (s *Splitter) SplitDocument(ctx context.Context, doc *model.Document, now time.Time) []model.Chunk {
	texts := s.Split(doc.Content)
	if len(texts) == 0 {
		logutil.GetLogger(ctx).Debug("document produced no chunks", zap.String("source", doc.Metadata.Source))
		return nil
	}
	chunks := make([]model.Chunk, 0, len(texts))
	for i, text := range texts {
		md := doc.Metadata.Clone()
		md.ChunkID = i
		md.TotalChunks = len(texts)
		md.IngestionTime = now.UTC()
		chunks = append(chunks, model.Chunk{Text: text, Metadata: md})
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var out []string
	var good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge joins pieces into windows. Pieces already carry their separator, so
// they are concatenated without one.
func (s *Splitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.size && len(current) > 0 {
			if doc := joinTrim(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := joinTrim(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator splits text on sep and glues each separator to the start
// of the piece that follows it. An empty sep splits into runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func joinTrim(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
