package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aisafe-dev/aisafegate/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default aisafegate.yaml",
	Long: `Write a default configuration file to ./aisafegate.yaml.

The generated file declares the baseline scanner chains with comments
explaining each knob. Refuses to overwrite an existing file unless
--force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing aisafegate.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	const path = "aisafegate.yaml"

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	data, err := config.DefaultYAML()
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("wrote %s\n", path)
	return nil
}
