package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/b0yaux/enginecore/internal/session"
)

func loadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <path>",
		Short: "Load a session file and report success",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			engine, err := buildEngine(s)
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}

			sessions := session.New(engine, "audioOutput", "videoOutput", slog.Default(), 1)
			defer sessions.Close()

			if err := sessions.LoadSession(args[0]); err != nil {
				return fmt.Errorf("loading session %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %s at version %d\n", args[0], engine.StateVersion())
			return nil
		},
	}
	return cmd
}
