package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/b0yaux/enginecore/internal/command"
	"github.com/b0yaux/enginecore/internal/script"
	"github.com/b0yaux/enginecore/internal/session"
)

func scriptDumpCommand() *cobra.Command {
	var loadFirst string

	cmd := &cobra.Command{
		Use:   "script-dump",
		Short: "Print the regenerated script for the current (optionally loaded) session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			engine, err := buildEngine(s)
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}

			if loadFirst != "" {
				sessions := session.New(engine, "audioOutput", "videoOutput", slog.Default(), 1)
				defer sessions.Close()
				if err := sessions.LoadSession(loadFirst); err != nil {
					return fmt.Errorf("loading session %q: %w", loadFirst, err)
				}
			} else {
				// Drain only publishes a snapshot when a command actually
				// applied; SetBPM to its own configured value always
				// succeeds, forcing one so the dump reflects the system
				// modules buildEngine just created directly on the registry.
				if err := engine.Enqueue(command.SetBPM(s.BPM)); err != nil {
					return fmt.Errorf("priming snapshot: %w", err)
				}
				engine.Drain(0)
			}

			scripts := script.New(engine, slog.Default())
			out, err := scripts.GenerateScriptFromState(engine.GetStateSnapshot())
			if err != nil {
				return fmt.Errorf("generating script: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&loadFirst, "from", "", "an existing session to load before generating the script")
	return cmd
}
