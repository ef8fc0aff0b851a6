package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/b0yaux/enginecore/internal/config"
)

var configPath string

// rootCommand builds the enginectl command tree: run, load, save,
// script-dump, set, and serve-metrics each construct their own Engine
// from the same settings rather than sharing process-wide state.
func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "enginectl",
		Short: "Command-line driver for the engine core runtime",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "directory to search for enginecore.yaml")
	root.SilenceUsage = true

	root.AddCommand(
		runCommand(),
		loadCommand(),
		saveCommand(),
		scriptDumpCommand(),
		setCommand(),
		serveMetricsCommand(),
	)
	return root
}

func loadSettings() (*config.Settings, error) {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	s, err := config.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}
