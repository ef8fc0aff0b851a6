package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/b0yaux/enginecore/internal/expr"
	"github.com/b0yaux/enginecore/internal/session"
)

func setCommand() *cobra.Command {
	var loadFirst string

	cmd := &cobra.Command{
		Use:   "set <module> <parameter> <expression>",
		Short: "Evaluate an arithmetic expression and set it as a module parameter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			moduleName, paramName, exprString := args[0], args[1], args[2]

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
			}

			value, err := expr.Evaluate(exprString)
			if err != nil {
				return fmt.Errorf("evaluating expression %q: %w", exprString, err)
			}

			mod, err := engine.Registry.ByName(moduleName)
			if err != nil {
				return fmt.Errorf("looking up module %q: %w", moduleName, err)
			}
			if err := mod.SetParameter(paramName, value, true); err != nil {
				return fmt.Errorf("setting %s.%s: %w", moduleName, paramName, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = %g\n", moduleName, paramName, value)
			return nil
		},
	}
	cmd.Flags().StringVar(&loadFirst, "from", "", "an existing session to load before setting the parameter")
	return cmd
}
