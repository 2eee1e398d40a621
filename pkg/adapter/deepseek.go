package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekClient implements the Client interface for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type deepseekRequest struct {
	Model     string            `json:"model"`
	Messages  []deepseekMessage `json:"messages"`
	MaxTokens int64             `json:"max_tokens,omitempty"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekClient creates a new DeepSeek client.
func NewDeepSeekClient(apiKey string) (*DeepSeekClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}

	return &DeepSeekClient{
		apiKey:     apiKey,
		baseURL:    deepseekBaseURL,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the client identifier.
func (c *DeepSeekClient) Name() string {
	return "deepseek"
}

// Models returns the list of supported DeepSeek models.
func (c *DeepSeekClient) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-reasoner",
	}
}

// Complete sends a prompt to DeepSeek and returns the response text.
func (c *DeepSeekClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := deepseekRequest{
		Model: opts.Model,
		Messages: []deepseekMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: opts.maxTokens(),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ClientError{Temporary: true, Err: fmt.Errorf("deepseek API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ClientError{
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(body, &deepseekResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if deepseekResp.Error != nil {
		return "", fmt.Errorf("deepseek API error: %s (type: %s, code: %s)",
			deepseekResp.Error.Message, deepseekResp.Error.Type, deepseekResp.Error.Code)
	}

	if len(deepseekResp.Choices) == 0 {
		return "", fmt.Errorf("deepseek returned no choices")
	}

	return deepseekResp.Choices[0].Message.Content, nil
}

// parseRetryAfter reads a Retry-After header in seconds form. The HTTP-date
// form is ignored; rate limiters send seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
