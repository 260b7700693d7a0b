// internal/logging/logger_test.go
package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NoError(t, logger.Sync())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"no outputs", func(c *Config) { c.Output.Stdout = false; c.Output.OTEL = false }},
		{"negative caller skip", func(c *Config) { c.Caller.Skip = -1 }},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"k": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			_, err := NewLogger(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithSessionID(context.Background(), "sess-123")
	ctx = WithRequestID(ctx, "req-456")

	tl.Info(ctx, "pipeline started")

	entries := tl.FilterMessage("pipeline started").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "sess-123", fields["session.id"])
	assert.Equal(t, "req-456", fields["request.id"])
}

func TestLogger_Named(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("quality")
	child.Warn(context.Background(), "score below threshold", zap.Float64("score", 42.5))

	entries := tl.FilterMessage("score below threshold").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "quality", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	// Nop logger must not panic
	logger.Info(context.Background(), "dropped")
}

func TestFromContext_RoundTrip(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	got := FromContext(ctx)
	got.Info(ctx, "round trip")
	tl.AssertLogged(t, zapcore.InfoLevel, "round trip")
}
