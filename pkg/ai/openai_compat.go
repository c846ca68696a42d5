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

// OpenAICompatSummarizer calls any OpenAI-compatible /v1/chat/completions
// endpoint. Works with Azure OpenAI proxies, vLLM, LiteLLM, OpenRouter,
// self-hosted models, etc.
type OpenAICompatSummarizer struct {
	baseURL       string
	apiKey        string
	model         string
	maxInputRunes int
	maxTokens     int
	httpClient    *http.Client
}

// NewOpenAICompatSummarizer builds an OpenAI-compatible Summarizer.
// baseURL should include the /v1 prefix, e.g. "https://api.openai.com/v1".
// apiKey can be empty for local models that do not require authentication.
func NewOpenAICompatSummarizer(baseURL, apiKey, model string, maxInputRunes int) *OpenAICompatSummarizer {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OpenAICompatSummarizer{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(apiKey),
		model:         strings.TrimSpace(model),
		maxInputRunes: maxInputRunes,
		maxTokens:     300,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Model reports the provider/model pair.
func (s *OpenAICompatSummarizer) Model() string {
	return "openai/" + s.model
}

// Summarize implements Summarizer using the OpenAI chat completions API.
func (s *OpenAICompatSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if s.model == "" {
		return "", fmt.Errorf("openai-compat summary model required")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("summary input text required")
	}

	reqBody := oaiChatRequest{
		Model: s.model,
		Messages: []oaiMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: truncateRunes(text, s.maxInputRunes)},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := s.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai-compat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("openai-compat api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("openai-compat api error: %s", resp.Status)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("openai-compat decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	summary := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	return summary, nil
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
