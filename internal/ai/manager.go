package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Timeout int
}

// Manager owns the prompt templates and applies the generation timeout.
type Manager struct {
	answerer   IGenerator
	summarizer IGenerator
	cfg        ManagerConfig
}

func NewManager(answerer IGenerator, summarizer IGenerator, cfg ManagerConfig) *Manager {
	if summarizer == nil {
		summarizer = answerer
	}
	return &Manager{
		answerer:   answerer,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

func (m *Manager) Answer(ctx context.Context, contextText string, question string) (string, error) {
	if m.answerer == nil {
		return "", ErrUnavailable
	}
	prompt := fmt.Sprintf(`You are a helpful AI assistant that answers questions based on the provided context.
Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

Context:
%s

Question: %s
Helpful Answer:`, contextText, question)
	return m.generateText(ctx, m.answerer, prompt)
}

func (m *Manager) Summarize(ctx context.Context, notes string) (string, error) {
	if m.summarizer == nil {
		return "", ErrUnavailable
	}
	prompt := fmt.Sprintf(`You are an expert at summarizing notes and extracting key information.
Create a concise daily summary of the following notes. Focus on:
1. Key themes and topics
2. Important decisions or action items
3. New information or insights
4. Any follow-up items

Format the summary with clear sections and bullet points, organized by topic.

Notes to summarize:
%s

Concise Daily Summary:`, notes)
	return m.generateText(ctx, m.summarizer, prompt)
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}
