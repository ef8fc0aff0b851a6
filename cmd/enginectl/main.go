// Command enginectl drives the engine core runtime from the command
// line: loading and saving sessions, dumping the regenerated script,
// setting a parameter, and serving Prometheus metrics, following the
// teacher's cobra/viper root-command shape.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		slog.Error("enginectl failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
