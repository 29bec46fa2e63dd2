package filestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/config"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	objs, err := s.List(ctx, "summary_")
	require.NoError(t, err)
	require.Empty(t, objs)

	body := "# Daily Summary\n\nhello"
	require.NoError(t, s.Save(ctx, "summary_b.md", strings.NewReader(body), int64(len(body))))
	require.NoError(t, s.Save(ctx, "summary_a.md", strings.NewReader("a"), 1))
	require.NoError(t, s.Save(ctx, "other.txt", strings.NewReader("x"), 1))
	require.ErrorIs(t, s.Save(ctx, "summary_b.md", strings.NewReader("again"), 5), ErrExists)
	require.Error(t, s.Save(ctx, "../escape.md", strings.NewReader("x"), 1))

	rc, err := s.Open(ctx, "summary_b.md")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, body, string(data))

	_, err = s.Open(ctx, "summary_missing.md")
	require.ErrorIs(t, err, ErrNotFound)

	objs, err = s.List(ctx, "summary_")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.Equal(t, "summary_a.md", objs[0].Key)
	require.Equal(t, "summary_b.md", objs[1].Key)
	require.EqualValues(t, len(body), objs[1].Size)
}

func TestLocalStore(t *testing.T) {
	s, err := New(config.FileStoreConfig{Type: "local", Dir: t.TempDir() + "/summaries"})
	require.NoError(t, err)
	require.Equal(t, "local", s.Type())
	exerciseStore(t, s)
}

func TestValidateKey(t *testing.T) {
	require.NoError(t, ValidateKey("summary_2026-01-01_10-00-00.md"))
	for _, k := range []string{"", ".", "..", "a/b", `a\b`} {
		require.Error(t, ValidateKey(k), k)
	}
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{})
	require.Error(t, err)
}

// fakeS3 implements the handful of path-style calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	switch {
	case r.Method == http.MethodGet && key == "" && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
		sb.WriteString(fmt.Sprintf(`<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, parts[0], prefix, len(keys)))
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(`<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00.000Z</LastModified></Contents>`, k, len(f.objects[k])))
		}
		sb.WriteString(`</ListBucketResult>`)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sb.String()))
	case r.Method == http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		if _, ok := f.objects[key]; ok && r.Header.Get("If-None-Match") == "*" {
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = w.Write([]byte(`<Error><Code>PreconditionFailed</Code><Message>exists</Message></Error>`))
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := New(config.FileStoreConfig{Type: "s3", S3: config.S3Config{
		Endpoint:  srv.URL,
		Bucket:    "notes",
		Region:    "us-east-1",
		Prefix:    "/daily/",
		SecretID:  "id",
		SecretKey: "secret",
	}})
	require.NoError(t, err)
	require.Equal(t, "s3", s.Type())
	exerciseStore(t, s)

	fake.mu.Lock()
	_, ok := fake.objects["daily/summary_a.md"]
	fake.mu.Unlock()
	require.True(t, ok)
}

func TestBuildEndpoint(t *testing.T) {
	require.Equal(t, "", buildEndpoint(" ", true))
	require.Equal(t, "https://minio:9000", buildEndpoint("minio:9000", true))
	require.Equal(t, "http://minio:9000", buildEndpoint("minio:9000/", false))
	require.Equal(t, "https://s3.example.com", buildEndpoint("https://s3.example.com/", false))
}
