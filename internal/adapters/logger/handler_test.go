package logger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/logger"
)

func newHandler(t *testing.T, buf *bytes.Buffer) *logger.PrettyHandler {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	return logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})
}

func TestPrettyHandler_Handle_Levels(t *testing.T) {
	tests := []struct {
		name       string
		level      slog.Level
		msg        string
		goldenName string
	}{
		{name: "info level", level: slog.LevelInfo, msg: "resolved 12 requirements", goldenName: "handler_info"},
		{name: "warn level", level: slog.LevelWarn, msg: "content hash not verified", goldenName: "handler_warn"},
		{name: "error level", level: slog.LevelError, msg: "stage failed", goldenName: "handler_error"},
		{name: "debug level filtered", level: slog.LevelDebug, msg: "debug message", goldenName: "handler_debug_filtered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			lg := slog.New(newHandler(t, buf))

			lg.Log(t.Context(), tt.level, tt.msg)

			goldie.New(t).Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestPrettyHandler_Attrs(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h slog.Handler) slog.Handler
		args       []any
		goldenName string
	}{
		{
			name:       "record attributes",
			setup:      func(h slog.Handler) slog.Handler { return h },
			args:       []any{"package", "certifi", "version", "2024.2.2"},
			goldenName: "handler_record_attrs",
		},
		{
			name: "handler and record attributes",
			setup: func(h slog.Handler) slog.Handler {
				return h.WithAttrs([]slog.Attr{slog.String("stage", "install")})
			},
			args:       []any{"wheels", 3},
			goldenName: "handler_combined_attrs",
		},
		{
			name: "nested groups",
			setup: func(h slog.Handler) slog.Handler {
				return h.WithGroup("index").WithGroup("source")
			},
			args:       []any{"url", "https://pypi.org/simple"},
			goldenName: "handler_group_nested",
		},
		{
			name:       "group attribute",
			setup:      func(h slog.Handler) slog.Handler { return h },
			args:       []any{slog.Group("identity", slog.Int("uid", 1000), slog.Int("gid", 1000))},
			goldenName: "handler_attrs_group",
		},
		{
			name:       "empty group name",
			setup:      func(h slog.Handler) slog.Handler { return h.WithGroup("") },
			args:       []any{"key", "val"},
			goldenName: "handler_group_empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			lg := slog.New(tt.setup(newHandler(t, buf)))

			lg.Info("message", tt.args...)

			goldie.New(t).Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestPrettyHandler_WithAttrs_DoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	base := newHandler(t, buf)
	_ = base.WithAttrs([]slog.Attr{slog.String("child", "1")})

	slog.New(base).Info("parent")

	assert.Equal(t, "parent\n", buf.String())
}

func TestPrettyHandler_Enabled(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, handler.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, handler.Enabled(t.Context(), slog.LevelWarn))
	assert.True(t, handler.Enabled(t.Context(), slog.LevelError))
}

func TestPrettyHandler_NilWriter(t *testing.T) {
	require.NotPanics(t, func() {
		_ = logger.NewPrettyHandler(nil, nil)
	})
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestPrettyHandler_Handle_ReturnsError(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	handler := logger.NewPrettyHandler(brokenWriter{}, nil)

	err := handler.Handle(t.Context(), slog.NewRecord(testTime, slog.LevelInfo, "msg", 0))
	require.Error(t, err)
}
