package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/proposald/internal/config"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false

	_, err := NewLogger(cfg, nil)
	assert.ErrorContains(t, err, "at least one output")
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLogger_WorkflowFields(t *testing.T) {
	logger := NewTestLogger()

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithPhase(ctx, "analysis")
	ctx = WithWorker(ctx, "analysis")
	ctx = WithInvocationID(ctx, "inv-9")
	logger.Info(ctx, "worker finished", zap.Int("attempts", 2))

	logger.AssertLogged(t, zapcore.InfoLevel, "worker finished")
	logger.AssertField(t, "worker finished", "session.id", "sess-1")
	logger.AssertField(t, "worker finished", "phase", "analysis")
	logger.AssertField(t, "worker finished", "worker", "analysis")
	logger.AssertField(t, "worker finished", "invocation.id", "inv-9")
	logger.AssertField(t, "worker finished", "attempts", 2)
}

func TestContextFields_InvalidIDsIgnored(t *testing.T) {
	ctx := WithSessionID(context.Background(), "bad id; drop table")
	assert.Empty(t, SessionIDFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))
}

func TestContextFields_ChildDoesNotMutateParent(t *testing.T) {
	parent := WithPhase(WithSessionID(context.Background(), "s1"), "analysis")
	_ = WithPhase(parent, "writing")

	fields := ContextFields(parent)
	require.Len(t, fields, 2)
	assert.Equal(t, "analysis", fields[1].String)
}

func TestContextFields_TraceCorrelation(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, traceID.String(), fields[0].String)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	logger := NewTestLogger()
	ctx := WithLogger(context.Background(), logger.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	logger.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)
}

func TestLevelFromString_Aliases(t *testing.T) {
	l, err := LevelFromString("WARNING")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	l, err = LevelFromString("Debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	_, err = LevelFromString("verbose")
	assert.Error(t, err)
}

func TestTestLogger_SessionEntries(t *testing.T) {
	logger := NewTestLogger()
	logger.Info(WithSessionID(context.Background(), "s1"), "phase started")
	logger.Info(WithSessionID(context.Background(), "s2"), "phase started")
	logger.Info(context.Background(), "unscoped")

	entries := logger.SessionEntries("s1")
	require.Len(t, entries, 1)
	assert.Equal(t, "phase started", entries[0].Message)
}

func TestTestLogger_All(t *testing.T) {
	logger := NewTestLogger()
	logger.Debug(context.Background(), "first")
	logger.Warn(context.Background(), "second")

	entries := logger.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
}

func TestLogger_ForWorker(t *testing.T) {
	logger := NewTestLogger()
	ctx := WithWorker(context.Background(), "strategy")
	logger.ForWorker("strategy").Info(ctx, "solution designed")
	logger.Info(ctx, "worker invocation succeeded")

	entries := logger.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "worker.strategy", entries[0].LoggerName)
	assert.Empty(t, entries[1].LoggerName)
	logger.AssertField(t, "solution designed", "worker", "strategy")
}

func TestLogger_DisabledLevelSkipsEntry(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	logger := &Logger{zap: zap.New(core)}
	ctx := WithSessionID(context.Background(), "s1")

	logger.Trace(ctx, "trace")
	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	entries := observed.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0].Message)
	assert.Equal(t, "s1", entries[1].ContextMap()["session.id"])
}

func TestStaticFields_SortedByKey(t *testing.T) {
	fields := staticFields(map[string]string{"service": "proposald", "env": "test", "region": "eu"})
	require.Len(t, fields, 3)
	assert.Equal(t, "env", fields[0].Key)
	assert.Equal(t, "region", fields[1].Key)
	assert.Equal(t, "service", fields[2].Key)
	assert.Empty(t, staticFields(nil))
}
