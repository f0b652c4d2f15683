package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level, "worker")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level", "api")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestCorrelationID_ContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithCorrelationID(context.Background(), "evt-123")
	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		t.Fatal("expected correlation id to exist")
	}
	if correlationID != "evt-123" {
		t.Fatalf("correlation id=%q, want=%q", correlationID, "evt-123")
	}

	if _, ok := CorrelationIDFromContext(context.Background()); ok {
		t.Fatal("expected correlation id to be missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	ctx := WithCorrelationID(context.Background(), "evt-789")
	WithContextLogger(baseLogger, ctx).Info("message with correlation")
	WithContextLogger(baseLogger, context.Background()).Info("message without correlation")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("entries=%d, want=2", len(entries))
	}
	if got := entries[0].ContextMap()["correlationId"]; got != "evt-789" {
		t.Fatalf("correlationId=%v, want=%q", got, "evt-789")
	}
	if _, ok := entries[1].ContextMap()["correlationId"]; ok {
		t.Fatal("expected correlationId field to be absent")
	}

	if got := WithContextLogger(nil, ctx); got != nil {
		t.Fatal("expected nil logger")
	}
}

func TestTenantField(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	logger.Info("host", TenantField(""))
	logger.Info("tenant", TenantField("t1"))

	entries := recorded.All()
	if got := entries[0].ContextMap()["tenantId"]; got != "host" {
		t.Fatalf("tenantId=%v, want host", got)
	}
	if got := entries[1].ContextMap()["tenantId"]; got != "t1" {
		t.Fatalf("tenantId=%v, want t1", got)
	}
}
