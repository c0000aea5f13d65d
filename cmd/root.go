package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"aectl/internal/config"
	"aectl/internal/logger"
)

// debug indicates whether debug logging should be enabled.
// It can be toggled via the `--debug` command-line flag.
var debug bool

// configPath optionally names a YAML overlay adjusting the built-in
// configuration (package lists, dependency builds, machine tables).
var configPath string

// rootCmd is the base command for the CLI tool `aectl`.
var rootCmd = &cobra.Command{
	Use:   "aectl",
	Short: "Artifact-evaluation orchestrator for the storage-system benchmark suite",

	// PersistentPreRun runs before any subcommand; initialize the logger
	// based on the debug flag here.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(debug)
	},
}

// Execute registers flags and starts command execution. Cobra prints
// usage for unknown verbs and bad argument counts; any error surfaces as
// the process's own non-zero exit status.
func Execute() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration overlay file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds the invocation's configuration or exits. Every verb
// needs the config before it can do anything, so failure here is always
// fatal and happens before any side effect.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("[ERROR] %v\n", err)
		os.Exit(1)
	}
	return cfg
}
