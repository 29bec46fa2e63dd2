package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const MetaContentType = "content_type"

// ErrUnsupported marks files the loader has no parser for.
var ErrUnsupported = errors.New("unsupported file type")

// parsed is what a format parser extracts from one file.
type parsed struct {
	Content     string
	Title       string
	ContentType string
	Extra       map[string]interface{}
}

type parseFunc func(data []byte) (*parsed, error)

var parsers = map[string]parseFunc{
	".md":       parseMarkdown,
	".markdown": parseMarkdown,
	".mdx":      parseMarkdown,
	".txt":      parsePlainText,
	".csv":      parseCSV,
	".docx":     parseDocx,
	".pptx":     parsePptx,
	".pdf":      parsePDF,
}

// Loader turns files under a notes root into documents. Sources are slash
// separated paths relative to the root.
type Loader struct {
	root    string
	maxSize int64
}

type Option func(*Loader)

func WithMaxFileSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

func New(root string, opts ...Option) *Loader {
	l := &Loader{root: filepath.Clean(root), maxSize: 32 << 20}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Root() string {
	return l.root
}

// Supported reports whether path has a known extension and is not hidden.
func Supported(path string) bool {
	if isHidden(filepath.Base(path)) {
		return false
	}
	_, ok := parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Source maps a path to its source key, rejecting paths outside the root.
func (l *Loader) Source(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(l.root, path)
	}
	rel, err := filepath.Rel(l.root, filepath.Clean(abs))
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the notes directory", path)
	}
	return filepath.ToSlash(rel), nil
}

// LoadFile parses a single file given relative to the root or absolute.
func (l *Loader) LoadFile(ctx context.Context, path string) (*model.Document, error) {
	source, err := l.Source(path)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(l.root, filepath.FromSlash(source))
	for _, part := range strings.Split(source, "/") {
		if isHidden(part) {
			return nil, fmt.Errorf("%s: hidden path: %w", source, ErrUnsupported)
		}
	}
	ext := strings.ToLower(filepath.Ext(full))
	parse, ok := parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w", source, ErrUnsupported)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", source)
	}
	if info.Size() > l.maxSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", source, l.maxSize)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	stem := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
	md := model.Metadata{
		Source:       source,
		FileName:     info.Name(),
		FileType:     strings.TrimPrefix(ext, "."),
		LastModified: info.ModTime().UTC(),
		Title:        p.Title,
		Extra:        p.Extra,
	}
	if md.Title == "" {
		md.Title = stem
	}
	if p.ContentType != "" {
		if md.Extra == nil {
			md.Extra = make(map[string]interface{})
		}
		md.Extra[MetaContentType] = p.ContentType
	}
	return &model.Document{Content: p.Content, Metadata: md, SourcePath: full}, nil
}

// LoadDir walks the whole root. Hidden entries and unsupported extensions
// are skipped; files that fail to parse are logged and skipped.
func (l *Loader) LoadDir(ctx context.Context) ([]model.Document, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("dir", l.root))
	if _, err := os.Stat(l.root); err != nil {
		return nil, fmt.Errorf("notes directory: %w", err)
	}
	var paths []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("walk notes directory failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		if path != l.root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	docs, _ := l.loadAll(ctx, paths)
	logger.Info("notes loaded", zap.Int("files", len(paths)), zap.Int("documents", len(docs)))
	return docs, nil
}

// LoadPaths loads the given files. Missing or unsupported entries are
// returned in skipped instead of failing the batch; files that parsed to
// blank content are returned by source in empty.
func (l *Loader) LoadPaths(ctx context.Context, paths []string) (docs []model.Document, skipped []string, empty []string) {
	var valid []string
	for _, p := range paths {
		source, err := l.Source(p)
		if err != nil || !Supported(source) {
			skipped = append(skipped, p)
			continue
		}
		valid = append(valid, filepath.Join(l.root, filepath.FromSlash(source)))
	}
	docs, empty = l.loadAll(ctx, valid)
	if len(docs)+len(empty) < len(valid) {
		loaded := make(map[string]bool, len(docs)+len(empty))
		for _, d := range docs {
			loaded[d.SourcePath] = true
		}
		for _, src := range empty {
			loaded[filepath.Join(l.root, filepath.FromSlash(src))] = true
		}
		for _, p := range valid {
			if !loaded[p] {
				rel, _ := l.Source(p)
				skipped = append(skipped, rel)
			}
		}
	}
	return docs, skipped, empty
}

func (l *Loader) loadAll(ctx context.Context, paths []string) ([]model.Document, []string) {
	logger := logutil.GetLogger(ctx)
	docs := make([]model.Document, 0, len(paths))
	var empty []string
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		doc, err := l.LoadFile(ctx, p)
		if err != nil {
			logger.Warn("skip document", zap.String("path", p), zap.Error(err))
			continue
		}
		if strings.TrimSpace(doc.Content) == "" {
			logger.Debug("skip empty document", zap.String("source", doc.Metadata.Source))
			empty = append(empty, doc.Metadata.Source)
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, empty
}
