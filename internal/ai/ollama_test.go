package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOllamaProviderGenerateAndEmbed(t *testing.T) {
	var chatReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&chatReq))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": " hi there "},
			})
		case "/api/embed":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"embeddings": [][]float32{{0.1, 0.2, 0.3}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gen, err := NewProvider("Ollama", map[string]interface{}{"base_url": srv.URL, "temperature": 0.1})
	require.NoError(t, err)
	out, err := NewGenerator(gen, "gemma:3b").Generate(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "hi there", out)
	require.Equal(t, "gemma:3b", chatReq.Model)
	require.False(t, chatReq.Stream)
	require.NotNil(t, chatReq.Options)
	require.InDelta(t, 0.1, *chatReq.Options.Temperature, 1e-6)

	emb, err := NewEmbedProvider("ollama", map[string]interface{}{"base_url": srv.URL})
	require.NoError(t, err)
	e := NewEmbedder(emb, "all-minilm")
	vec, err := e.Embed(context.Background(), "text", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, "ollama:all-minilm", e.ModelName())
}

func TestOllamaProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewProvider("ollama", map[string]interface{}{"base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "missing", "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "model not found")
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	p, err := NewProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "gpt", "hello")
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpenAIProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "secret", "base_url": srv.URL + "/v1"})
	require.NoError(t, err)
	vec, err := p.Embed(context.Background(), "text-embedding-3-small", "x", "")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, vec)
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewProvider("nope", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}
