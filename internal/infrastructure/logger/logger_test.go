package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		l, err := New(nil)
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("writes json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		l, err := New(&Config{Level: "info", Format: "json", Output: path})
		require.NoError(t, err)

		l.Info("hello", zap.String("k", "v"))
		require.NoError(t, l.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"hello"`)
		assert.Contains(t, string(data), `"k":"v"`)
	})

	t.Run("unwritable output fails", func(t *testing.T) {
		_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "app.log")})
		require.Error(t, err)
	})

	t.Run("tees extra cores", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)
		l, err := New(&Config{Level: "error", Output: "stderr"}, core)
		require.NoError(t, err)

		l.Info("to extra core only")
		assert.Equal(t, 1, recorded.Len())
	})
}

func TestMasked(t *testing.T) {
	secret := "a-very-long-dsm-password"

	core, recorded := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("login", Masked("password", secret), Masked("empty", ""), Masked("short", "abc"))

	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED:long]", fields["password"])
	assert.Equal(t, "", fields["empty"])
	assert.Equal(t, "[REDACTED]", fields["short"])
	assert.NotContains(t, fields["password"], secret)
}
