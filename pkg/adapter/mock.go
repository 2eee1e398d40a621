package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockReply is one scripted outcome for a matching prompt.
type MockReply struct {
	Text string
	Err  error
}

type mockScript struct {
	match   string
	replies []MockReply
	next    int
}

// MockClient returns deterministic responses for local runs and tests.
// Scripts are matched by prompt substring; successive matching calls
// consume successive replies, with the last reply repeating. The client is
// safe for concurrent use.
type MockClient struct {
	mu              sync.Mutex
	scripts         []*mockScript
	defaultResponse string
	prompts         []string
}

// NewMockClient creates a mock client with a default response.
func NewMockClient() *MockClient {
	return &MockClient{defaultResponse: "mock response"}
}

// Script registers replies for prompts containing match.
func (m *MockClient) Script(match string, replies ...MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, &mockScript{match: match, replies: replies})
}

// SetDefault overrides the response for prompts no script matches.
func (m *MockClient) SetDefault(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResponse = text
}

// Name returns the client identifier.
func (m *MockClient) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (m *MockClient) Models() []string {
	return []string{"mock-1"}
}

// Complete returns the next scripted reply for the prompt.
func (m *MockClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	for _, script := range m.scripts {
		if !strings.Contains(prompt, script.match) {
			continue
		}
		if len(script.replies) == 0 {
			break
		}
		reply := script.replies[script.next]
		if script.next < len(script.replies)-1 {
			script.next++
		}
		return reply.Text, reply.Err
	}

	return fmt.Sprintf("%s\n%s", m.defaultResponse, prompt), nil
}

// Calls returns how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
