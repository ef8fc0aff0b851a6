package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/b0yaux/enginecore/internal/telemetry"
)

func serveMetricsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Build an engine and serve its Prometheus metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			engine, err := buildEngine(s)
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}

			metrics := telemetry.New("enginecore")
			defer metrics.Close()
			if _, err := metrics.ObserveEngine(engine); err != nil {
				return fmt.Errorf("starting telemetry: %w", err)
			}

			return serveMetricsHandler(metrics, s.Metrics.Addr)
		},
	}
	return cmd
}

// serveMetricsHandler blocks serving m's Prometheus handler on addr until
// the listener fails; runCommand backgrounds this in a goroutine, while
// serveMetricsCommand runs it on the main goroutine directly.
func serveMetricsHandler(m *telemetry.Manager, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	slog.Info("serving metrics", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
