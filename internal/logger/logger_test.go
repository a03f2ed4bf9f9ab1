package logger

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRequestIDRoundtrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("empty context should carry no request ID, got %q", got)
	}
	ctx = WithRequestID(ctx, "TSLA-123")
	if got := RequestID(ctx); got != "TSLA-123" {
		t.Errorf("request ID lost: got %q", got)
	}
}

func TestNewRequestID(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_000)
	id := NewRequestID("TSLA", ts)
	if !strings.HasPrefix(id, "TSLA-") {
		t.Errorf("request ID should start with the ticker: %q", id)
	}
}

func TestWithRequest(t *testing.T) {
	if attrs := WithRequest(context.Background()); attrs != nil {
		t.Errorf("no request ID should give no attrs, got %v", attrs)
	}
	ctx := WithRequestID(context.Background(), "QQQ-9")
	if attrs := WithRequest(ctx); len(attrs) != 1 {
		t.Errorf("expected one attr, got %v", attrs)
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"ab":         "****",
		"demo-key-1": "de****",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
	if strings.Contains(Redact("supersecretkey"), "secret") {
		t.Error("redacted value must not leak the secret")
	}
}
