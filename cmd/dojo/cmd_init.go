package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cyclesdojo/internal/config"
)

// initCmd writes a default configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration to the workspace",
	Long: `Creates .dojo/config.yaml with the default scenario: the Horn of Africa
countries, the 12 candidate planting days and the Cycles run script paths.
An existing configuration is left untouched.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	path := resolveConfigPath(ws)

	if _, err := os.Stat(path); err == nil {
		logger.Warn("Configuration already exists", zap.String("path", path))
		fmt.Printf("%s already exists; leaving it unchanged\n", path)
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	logger.Info("Configuration written", zap.String("path", path))
	fmt.Printf("Wrote %s\n", path)
	return nil
}
