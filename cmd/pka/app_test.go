package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/config"
)

func TestBuildEmbedderSingleModel(t *testing.T) {
	cfg := config.AIConfig{Providers: []config.AIProviderConfig{{Name: "local", Type: "ollama"}}}

	e, err := buildEmbedder(cfg, []config.AIModelRef{{Provider: "local", Model: "all-minilm"}})
	require.NoError(t, err)
	require.Equal(t, "ollama:all-minilm", e.ModelName())

	_, err = buildEmbedder(cfg, []config.AIModelRef{
		{Provider: "local", Model: "all-minilm"},
		{Provider: "local", Model: "nomic-embed-text"},
	})
	require.Error(t, err)

	_, err = buildEmbedder(cfg, nil)
	require.Error(t, err)

	_, err = buildEmbedder(cfg, []config.AIModelRef{{Provider: "missing", Model: "m"}})
	require.Error(t, err)
}

func TestBuildGeneratorFallbackNames(t *testing.T) {
	cfg := config.AIConfig{Providers: []config.AIProviderConfig{{Name: "local", Type: "ollama"}}}
	gen, names, err := buildGenerator(cfg, []config.AIModelRef{
		{Provider: "local", Model: "llama3.2"},
		{Provider: "local", Model: "mistral"},
	})
	require.NoError(t, err)
	require.NotNil(t, gen)
	require.Equal(t, []string{"local/llama3.2", "local/mistral"}, names)
}
