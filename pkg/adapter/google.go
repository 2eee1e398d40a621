package adapter

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleClient implements the Client interface for Gemini models.
type GoogleClient struct {
	client *genai.Client
}

// NewGoogleClient creates a new Google Gemini client.
func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleClient{client: client}, nil
}

// Name returns the client identifier.
func (c *GoogleClient) Name() string {
	return "google"
}

// Models returns the list of supported Gemini models.
func (c *GoogleClient) Models() []string {
	return []string{
		"gemini-2.0-pro",
	}
}

// Complete sends a prompt to Gemini and returns the response text.
func (c *GoogleClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, opts.Model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("google API error: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("google returned no candidates")
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	return content, nil
}
