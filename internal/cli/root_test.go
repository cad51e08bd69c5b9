package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("should expose the expected subcommands", func(t *testing.T) {
		root := GetRootCmd()

		names := map[string]bool{}
		for _, cmd := range root.Commands() {
			names[cmd.Name()] = true
		}
		assert.True(t, names["serve"])
		assert.True(t, names["configure"])
	})

	t.Run("should carry the global flags", func(t *testing.T) {
		root := GetRootCmd()
		require.NotNil(t, root.PersistentFlags().Lookup("config"))
		require.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	})
}
