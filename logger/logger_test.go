package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			assert.NoError(t, err)
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(10))
}

func TestSetVerbosity(t *testing.T) {
	SetVerbosity(VerbosityDebug)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	SetVerbosity(VerbosityUser)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "User", LevelName(0))
	assert.Equal(t, "Debug (-vv)", LevelName(2))
	assert.Equal(t, "Trace (-vvv+)", LevelName(7))
	assert.Equal(t, "Unknown", LevelName(-2))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithComponent(ctx, "deeplook.transport")
	ctx = WithConnID(ctx, "3f0c")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{FieldComponent, "deeplook.transport", FieldConnID, "3f0c"}, fields)
}

func TestLoggerFromContext(t *testing.T) {
	assert.Same(t, Logger, LoggerFromContext(context.Background()))
	assert.NotSame(t, Logger, LoggerFromContext(WithComponent(context.Background(), "bridge")))
	assert.NotNil(t, ChildLogger(ComponentLogger("bridge"), FieldCommand, "reset"))
}

func TestShouldLogFrames(t *testing.T) {
	assert.False(t, ShouldLogFrames(VerbosityDebug))
	assert.True(t, ShouldLogFrames(VerbosityTrace))
}
