package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should write to the configured file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "maestro.log")
		log, err := New(Config{Level: "info", File: path})
		require.NoError(t, err)
		defer log.Close()

		zl := log.Zerolog()
		zl.Info().Msg("hello from test")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello from test")
	})

	t.Run("should fall back to info on an unknown level", func(t *testing.T) {
		log, err := New(Config{Level: "loud", Console: true})
		require.NoError(t, err)
		defer log.Close()
		assert.Equal(t, "info", log.Zerolog().GetLevel().String())
	})
}

func TestRedactor(t *testing.T) {
	r := NewRedactor()

	t.Run("should mask provider api keys", func(t *testing.T) {
		masked := r.Redact("using key sk-ant-REDACTED for requests")
		assert.NotContains(t, masked, "sk-ant-REDACTED")
		assert.Contains(t, masked, "[REDACTED]")
	})

	t.Run("should mask bearer tokens", func(t *testing.T) {
		masked := r.Redact("Authorization: Bearer abc.def.ghi")
		assert.Contains(t, masked, "[REDACTED]")
	})

	t.Run("should leave ordinary text alone", func(t *testing.T) {
		assert.Equal(t, "nothing secret here", r.Redact("nothing secret here"))
	})

	t.Run("should accept custom patterns", func(t *testing.T) {
		require.NoError(t, r.AddPattern(`maestro-[0-9]+`))
		assert.Contains(t, r.Redact("id maestro-12345"), "[REDACTED]")
	})
}
