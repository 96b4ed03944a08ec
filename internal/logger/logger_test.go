package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestNewBuildsBothEnvironments(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		l, err := New(Config{Env: env, Level: "warn", ServiceName: "authkit"})
		require.NoError(t, err, env)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel), env)
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel), env)
	}
}

func TestContextRoundTrip(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := ToContext(context.Background(), zap.New(core))

	From(ctx).Info("hello", UserID("u1"), Op("login"))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "login", fields["op"])

	assert.NotNil(t, From(context.Background()))
}
