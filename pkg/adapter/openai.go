package adapter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// OpenAIClient implements the Client interface for OpenAI models.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := openai.NewClient()
	return &OpenAIClient{client: client}, nil
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns the list of supported OpenAI models.
func (c *OpenAIClient) Models() []string {
	return []string{
		"gpt-5.2-instant",
		"gpt-5.2-thinking",
		"gpt-5.2-pro",
	}
}

// Complete sends a prompt to OpenAI and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(opts.maxTokens()),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
