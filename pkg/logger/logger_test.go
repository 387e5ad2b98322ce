package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(newBase()) })

	InfoCF("engine", "turn processed", map[string]interface{}{
		"session_id": "s1",
		"phase":      "PREFERENCES_ACTIVE",
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "turn processed", entries[0].Message)
	assert.Equal(t, "engine", ctx["component"])
	assert.Equal(t, "s1", ctx["session_id"])
	assert.Equal(t, "PREFERENCES_ACTIVE", ctx["phase"])
}

func TestSetLevelRoundTrip(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(DEBUG)
	if GetLevel() != DEBUG {
		t.Fatalf("expected DEBUG, got %v", GetLevel())
	}
	SetLevel(ERROR)
	if GetLevel() != ERROR {
		t.Fatalf("expected ERROR, got %v", GetLevel())
	}
}
