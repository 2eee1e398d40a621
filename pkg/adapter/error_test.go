package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{ timeout bool }

func (e *timeoutErr) Error() string   { return "net op failed" }
func (e *timeoutErr) Timeout() bool   { return e.timeout }
func (e *timeoutErr) Temporary() bool { return e.timeout }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"wrapped cancelled", fmt.Errorf("call: %w", context.Canceled), false},
		{"network timeout", &timeoutErr{timeout: true}, true},
		{"network non-timeout", &timeoutErr{}, false},
		{"rate limited", &ClientError{Status: 429}, true},
		{"server error", &ClientError{Status: 503}, true},
		{"unauthorized", &ClientError{Status: 401}, false},
		{"bad request", &ClientError{Status: 400}, false},
		{"temporary flag", &ClientError{Temporary: true, Err: errors.New("conn reset")}, true},
		{"wrapped client error", fmt.Errorf("stage: %w", &ClientError{Status: 500}), true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	err := &ClientError{Status: 502, Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected ClientError to unwrap its cause")
	}
	if err.Error() != "socket closed" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if msg := (&ClientError{Status: 418}).Error(); msg != "client error (status=418)" {
		t.Fatalf("unexpected message: %s", msg)
	}
}
