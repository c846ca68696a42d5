package ai

import (
	"context"
	"fmt"
	"strings"
)

const summarySystemPrompt = "Summarize the following book content."

// Summarizer produces a short natural-language summary of book text.
// All providers (OpenAI-compatible, Ollama) implement this interface.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	// Model reports the provider/model pair for provenance records.
	Model() string
}

// NewSummarizer selects a provider by name. Supported providers are
// "openai" (any OpenAI-compatible endpoint) and "ollama".
func NewSummarizer(provider, baseURL, apiKey, model string, maxInputRunes int) (Summarizer, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return NewOpenAICompatSummarizer(baseURL, apiKey, model, maxInputRunes), nil
	case "ollama":
		return NewOllamaSummarizer(baseURL, model, maxInputRunes), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider: %q", provider)
	}
}

// truncateRunes caps the prompt size so arbitrarily large books do not blow
// past provider context limits.
func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max]))
}
