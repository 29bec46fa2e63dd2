package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

type recordingIngester struct {
	mu    sync.Mutex
	calls [][]string
	done  chan struct{}
}

func newRecordingIngester() *recordingIngester {
	return &recordingIngester{done: make(chan struct{}, 16)}
}

func (r *recordingIngester) Ingest(ctx context.Context, paths []string) (*model.IngestReport, error) {
	r.mu.Lock()
	r.calls = append(r.calls, paths)
	r.mu.Unlock()
	r.done <- struct{}{}
	return &model.IngestReport{Documents: len(paths)}, nil
}

func (r *recordingIngester) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("ingest was not called")
	}
}

func TestHandleEvent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.md"), 0o755))
	w := New(root, nil, 0)

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want string
	}{
		{name: "create", path: "a.md", op: fsnotify.Create, want: "a.md"},
		{name: "write nested", path: "sub/b.txt", op: fsnotify.Write, want: "sub/b.txt"},
		{name: "remove", path: "gone.pdf", op: fsnotify.Remove, want: "gone.pdf"},
		{name: "rename", path: "old.md", op: fsnotify.Rename, want: "old.md"},
		{name: "write and chmod", path: "a.md", op: fsnotify.Write | fsnotify.Chmod, want: "a.md"},
		{name: "chmod only", path: "a.md", op: fsnotify.Chmod},
		{name: "hidden file", path: ".draft.md", op: fsnotify.Write},
		{name: "hidden dir", path: ".obsidian/x.md", op: fsnotify.Write},
		{name: "unsupported", path: "photo.png", op: fsnotify.Create},
		{name: "directory with note extension", path: "dir.md", op: fsnotify.Create},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, ok := w.handleEvent(fsnotify.Event{Name: filepath.Join(root, filepath.FromSlash(tt.path)), Op: tt.op})
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestDebounceBatchesPaths(t *testing.T) {
	ing := newRecordingIngester()
	w := New(t.TempDir(), ing, 20*time.Millisecond)
	ctx := context.Background()
	w.enqueue(ctx, "b.md")
	w.enqueue(ctx, "a.md")
	w.enqueue(ctx, "b.md")
	ing.wait(t)

	ing.mu.Lock()
	defer ing.mu.Unlock()
	require.Len(t, ing.calls, 1)
	require.Equal(t, []string{"a.md", "b.md"}, ing.calls[0])
}

func TestRunPicksUpChanges(t *testing.T) {
	root := t.TempDir()
	ing := newRecordingIngester()
	w := New(root, ing, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// give the watcher time to register the root
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
	ing.wait(t)

	ing.mu.Lock()
	require.Contains(t, ing.calls[0], "note.md")
	ing.mu.Unlock()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestHiddenPath(t *testing.T) {
	assert.True(t, hiddenPath("/n", "/n/.git/config"))
	assert.True(t, hiddenPath("/n", "/n/a/.b.md"))
	assert.False(t, hiddenPath("/n", "/n/a/b.md"))
}
