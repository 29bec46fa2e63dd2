package ai

import (
	"net/http"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	HTTPReferer string   `json:"http_referer"`
	XTitle      string   `json:"x_title"`
	Temperature *float32 `json:"temperature"`
	Timeout     int      `json:"timeout"`
}

func newOpenRouterProvider(args interface{}) (*openAIProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	// attribution headers shown on the openrouter dashboard
	headers := map[string]string{}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		headers["X-Title"] = v
	}
	return &openAIProvider{
		name:        "openrouter",
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		headers:     headers,
		client:      &http.Client{Timeout: httpTimeout(cfg.Timeout)},
	}, nil
}

func createOpenRouterFactory(args interface{}) (IAIProvider, error) {
	return newOpenRouterProvider(args)
}

func createOpenRouterEmbedFactory(args interface{}) (IEmbedProvider, error) {
	return newOpenRouterProvider(args)
}

func init() {
	Register("openrouter", createOpenRouterFactory)
	RegisterEmbed("openrouter", createOpenRouterEmbedFactory)
}
