package reqctx

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID() = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Errorf("RequestID() = %q, want req-42", got)
	}
}

func TestSessionID(t *testing.T) {
	ctx := WithSessionID(context.Background(), "sess-1")
	if got := SessionID(ctx); got != "sess-1" {
		t.Errorf("SessionID() = %q, want sess-1", got)
	}
	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID() = %q, want empty", got)
	}
}
