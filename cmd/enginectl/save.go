package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/b0yaux/enginecore/internal/session"
)

func saveCommand() *cobra.Command {
	var loadFirst string

	cmd := &cobra.Command{
		Use:   "save <path>",
		Short: "Save the current (optionally freshly loaded) session to path",
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

			if loadFirst != "" {
				if err := sessions.LoadSession(loadFirst); err != nil {
					return fmt.Errorf("loading session %q: %w", loadFirst, err)
				}
			}

			if err := sessions.SaveSessionSync(args[0]); err != nil {
				return fmt.Errorf("saving session %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&loadFirst, "from", "", "an existing session to load before saving")
	return cmd
}
