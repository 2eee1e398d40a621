package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDeepSeekRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	client, err := NewDeepSeekClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.baseURL = srv.URL

	_, err = client.Complete(context.Background(), "prompt", Options{Model: "deepseek-chat"})
	if err == nil {
		t.Fatal("expected rate limit error")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if clientErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", clientErr.Status)
	}
	if clientErr.RetryAfter != 2*time.Second {
		t.Fatalf("expected 2s retry-after, got %s", clientErr.RetryAfter)
	}
	if !IsTransient(err) {
		t.Fatal("rate limit must classify as transient")
	}
}

func TestDeepSeekCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Definition: ok."}}]}`))
	}))
	defer srv.Close()

	client, err := NewDeepSeekClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.baseURL = srv.URL

	text, err := client.Complete(context.Background(), "prompt", Options{Model: "deepseek-chat"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Definition: ok." {
		t.Fatalf("unexpected response %q", text)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.value); got != tt.want {
			t.Fatalf("parseRetryAfter(%q) = %s, want %s", tt.value, got, tt.want)
		}
	}
}
