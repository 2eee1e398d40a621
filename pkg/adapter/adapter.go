// Package adapter provides model completion clients for the supported LLM
// providers, plus a deterministic mock for tests.
package adapter

import "context"

// DefaultMaxTokens bounds a completion when the caller does not set one.
const DefaultMaxTokens = 4096

// Options configures a single completion call.
type Options struct {
	Model     string
	MaxTokens int64
}

// Client defines the interface for LLM completion providers.
type Client interface {
	// Complete sends a prompt to the model and returns the raw response
	// text. Failures may be transient (network, timeout, rate limit);
	// classify them with IsTransient.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)

	// Name returns the client's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

func (o Options) maxTokens() int64 {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return DefaultMaxTokens
}
