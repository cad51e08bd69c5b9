package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path, apiKey string, port int) {
	t.Helper()
	payload := `{
		"ai": {"provider": "anthropic", "api_key": "` + apiKey + `", "model": "claude-sonnet-4"},
		"gateway": {"port": ` + strconv.Itoa(port) + `}
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))
}

func TestWatcher(t *testing.T) {
	t.Run("should invoke the callback on a valid reload", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "maestro.json")
		writeConfigFile(t, path, "sk-first", 8080)

		reloaded := make(chan *Config, 1)
		w, err := NewWatcher(NewLoader(path), func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		}, zerolog.Nop())
		require.NoError(t, err)
		defer w.Close()

		writeConfigFile(t, path, "sk-second", 9090)

		select {
		case cfg := <-reloaded:
			assert.Equal(t, 9090, cfg.Gateway.Port)
		case <-time.After(3 * time.Second):
			t.Fatal("reload callback never fired")
		}
	})

	t.Run("should not invoke the callback for an invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "maestro.json")
		writeConfigFile(t, path, "sk-first", 8080)

		reloaded := make(chan *Config, 1)
		w, err := NewWatcher(NewLoader(path), func(cfg *Config) {
			reloaded <- cfg
		}, zerolog.Nop())
		require.NoError(t, err)
		defer w.Close()

		// Missing api key fails validation and must be ignored.
		writeConfigFile(t, path, "", 8080)

		select {
		case <-reloaded:
			t.Fatal("invalid config must not trigger the callback")
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("should close idempotently", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "maestro.json")
		writeConfigFile(t, path, "sk", 8080)

		w, err := NewWatcher(NewLoader(path), nil, zerolog.Nop())
		require.NoError(t, err)
		assert.NoError(t, w.Close())
		assert.NoError(t, w.Close())
	})
}
