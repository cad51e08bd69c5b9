package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devlikebear/maestro/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to the config path, then print
where it was written. Existing configuration is not overwritten.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()

	if existing, err := loader.Load(); err == nil && existing.AI.APIKey != "" {
		return fmt.Errorf("config already exists at %s; edit it directly", path)
	}

	if err := loader.Save(config.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Wrote default config to %s\n", path)
	fmt.Println("Set ai.api_key before running 'maestro serve'.")
	return nil
}
