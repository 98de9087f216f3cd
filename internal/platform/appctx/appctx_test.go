package appctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithLogger_And_LoggerFromContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	got, ok := LoggerFromContext(ctx)
	if !ok || got != logger {
		t.Fatal("expected the attached logger")
	}
}

func TestLoggerFromContext_NilLogger(t *testing.T) {
	ctx := context.WithValue(context.Background(), loggerKey{}, (*slog.Logger)(nil))
	if _, ok := LoggerFromContext(ctx); ok {
		t.Error("nil logger must not count as present")
	}
	if GetLogger(ctx) == nil {
		t.Error("GetLogger must fall back to slog.Default()")
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(buf, nil)))
	ctx = With(ctx, "slug", "infoblox-lab1")

	GetLogger(ctx).Info("resolved")
	if !strings.Contains(buf.String(), "slug=infoblox-lab1") {
		t.Errorf("expected slug attribute, got %q", buf.String())
	}
}
