package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zen-systems/scribegate/pkg/adapter"
	"github.com/zen-systems/scribegate/pkg/config"
	"github.com/zen-systems/scribegate/pkg/render"
	"github.com/zen-systems/scribegate/pkg/template"
)

const validSayMeansResponse = `Definition: Clarifies the gap between literal wording and intent.

Say–Mean Analysis
- "fine" signals resigned agreement

Implications
- revisit the decision`

func fastPolicy(maxAttempts int) config.RunnerConfig {
	return config.RunnerConfig{
		MaxAttempts:    maxAttempts,
		MaxConcurrent:  2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		StageTimeout:   5 * time.Second,
	}
}

func newExecutor(t *testing.T, client adapter.Client, maxAttempts int) *Executor {
	t.Helper()
	catalog, err := template.Builtin()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return &Executor{
		Catalog: catalog,
		Client:  client,
		Policy:  fastPolicy(maxAttempts),
	}
}

func TestExecutorSucceedsFirstAttempt(t *testing.T) {
	client := adapter.NewMockClient()
	client.SetDefault(validSayMeansResponse)
	exec := newExecutor(t, client, 3)

	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "say-means"},
		map[string]string{"transcript": "A: hello"})

	if res.Status != StatusSucceeded {
		t.Fatalf("expected success, got %s: %v", res.Status, res.Err)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", res.Attempts)
	}
	if res.Result == nil || !res.Result.Valid() {
		t.Fatal("expected a valid parsed result")
	}
}

func TestExecutorRetriesContractViolation(t *testing.T) {
	// First reply omits the blank line after the header; the retry fixes it.
	bad := "Definition: Clarifies intent.\nSay–Mean Analysis\n- a\n\nImplications\n- b"
	client := adapter.NewMockClient()
	client.Script("say", adapter.MockReply{Text: bad}, adapter.MockReply{Text: validSayMeansResponse})
	exec := newExecutor(t, client, 3)

	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "say-means"},
		map[string]string{"transcript": "A: hello"})

	if res.Status != StatusSucceeded {
		t.Fatalf("expected success after retry, got %s: %v", res.Status, res.Err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	// The regeneration prompt must carry the violation detail.
	prompts := client.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(prompts))
	}
	if prompts[0] == prompts[1] {
		t.Fatal("retry prompt should differ from the original")
	}
}

func TestExecutorRetryExhaustion(t *testing.T) {
	const attempts = 3
	client := adapter.NewMockClient()
	client.SetDefault("garbage with no header at all")
	exec := newExecutor(t, client, attempts)

	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "say-means"},
		map[string]string{"transcript": "A: hello"})

	if res.Status != StatusRetryExhausted {
		t.Fatalf("expected retry exhaustion, got %s: %v", res.Status, res.Err)
	}
	if res.Attempts != attempts {
		t.Fatalf("expected exactly %d attempts, got %d", attempts, res.Attempts)
	}
	if client.Calls() != attempts {
		t.Fatalf("expected exactly %d model calls, got %d", attempts, client.Calls())
	}
	if res.Result == nil || res.Result.Valid() {
		t.Fatal("exhausted stage should keep its last (invalid) parse")
	}
	var contractErr *ContractError
	if !errors.As(res.Err, &contractErr) {
		t.Fatalf("expected ContractError, got %v", res.Err)
	}
}

func TestExecutorUnboundVariableFailsWithoutModelCall(t *testing.T) {
	client := adapter.NewMockClient()
	exec := newExecutor(t, client, 3)

	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "say-means"}, nil)

	if res.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	var unbound *render.UnboundVariableError
	if !errors.As(res.Err, &unbound) {
		t.Fatalf("expected UnboundVariableError, got %v", res.Err)
	}
	if client.Calls() != 0 {
		t.Fatalf("configuration error must not reach the model, got %d calls", client.Calls())
	}
}

func TestExecutorUnknownTemplateFailsImmediately(t *testing.T) {
	client := adapter.NewMockClient()
	exec := newExecutor(t, client, 3)

	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "no-such-template"},
		map[string]string{"transcript": "x"})

	if res.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	if !errors.Is(res.Err, template.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", res.Err)
	}
	if client.Calls() != 0 {
		t.Fatalf("expected no model calls, got %d", client.Calls())
	}
}

func TestExecutorRetriesTransientClientFailure(t *testing.T) {
	client := adapter.NewMockClient()
	client.Script("say",
		adapter.MockReply{Err: &adapter.ClientError{Status: 429, Err: fmt.Errorf("rate limited")}},
		adapter.MockReply{Text: validSayMeansResponse})
	exec := newExecutor(t, client, 3)

	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "say-means"},
		map[string]string{"transcript": "A: hello"})

	if res.Status != StatusSucceeded {
		t.Fatalf("expected success after transient failure, got %s: %v", res.Status, res.Err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestExecutorHonorsAdvertisedRetryAfter(t *testing.T) {
	const wait = 50 * time.Millisecond
	client := adapter.NewMockClient()
	client.Script("say",
		adapter.MockReply{Err: &adapter.ClientError{Status: 429, RetryAfter: wait, Err: fmt.Errorf("rate limited")}},
		adapter.MockReply{Text: validSayMeansResponse})
	exec := newExecutor(t, client, 3)

	start := time.Now()
	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "say-means"},
		map[string]string{"transcript": "A: hello"})

	if res.Status != StatusSucceeded {
		t.Fatalf("expected success after rate limit, got %s: %v", res.Status, res.Err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	// The policy backoff is 1-2ms; a delay at the advertised duration
	// shows the provider's wait took precedence.
	if elapsed := time.Since(start); elapsed < wait {
		t.Fatalf("retry fired after %s, before the advertised %s", elapsed, wait)
	}
}

func TestExecutorPermanentClientFailure(t *testing.T) {
	client := adapter.NewMockClient()
	client.Script("say",
		adapter.MockReply{Err: &adapter.ClientError{Status: 401, Err: fmt.Errorf("bad key")}})
	exec := newExecutor(t, client, 3)

	res := exec.Run(context.Background(), &Stage{ID: "s", Template: "say-means"},
		map[string]string{"transcript": "A: hello"})

	if res.Status != StatusFailed {
		t.Fatalf("expected immediate failure, got %s", res.Status)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", res.Attempts)
	}
}
