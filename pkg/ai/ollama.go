package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaSummarizer calls the Ollama /api/chat endpoint.
type OllamaSummarizer struct {
	baseURL       string
	model         string
	maxInputRunes int
	httpClient    *http.Client
}

// NewOllamaSummarizer builds an Ollama-based Summarizer.
func NewOllamaSummarizer(baseURL, model string, maxInputRunes int) *OllamaSummarizer {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaSummarizer{
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         strings.TrimSpace(model),
		maxInputRunes: maxInputRunes,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Model reports the provider/model pair.
func (s *OllamaSummarizer) Model() string {
	return "ollama/" + s.model
}

// Summarize implements Summarizer using Ollama /api/chat.
func (s *OllamaSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if s.model == "" {
		return "", fmt.Errorf("ollama summary model required")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("summary input text required")
	}

	reqBody := ollamaChatRequest{
		Model: s.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: truncateRunes(text, s.maxInputRunes)},
		},
		Stream: false,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := s.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ollamaErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return "", fmt.Errorf("ollama api error: %s", errResp.Error)
		}
		return "", fmt.Errorf("ollama api error: %s", resp.Status)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("ollama decode: %w", err)
	}
	summary := strings.TrimSpace(chatResp.Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty response from ollama api")
	}
	return summary, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
