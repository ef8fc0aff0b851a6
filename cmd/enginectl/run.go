package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/b0yaux/enginecore/internal/script"
	"github.com/b0yaux/enginecore/internal/session"
	"github.com/b0yaux/enginecore/internal/telemetry"
)

func runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted, autosaving the session along the way",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			engine, err := buildEngine(s)
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}

			logger := slog.Default()
			sessions := session.New(engine, "audioOutput", "videoOutput", logger, 8)
			defer sessions.Close()

			if _, statErr := os.Stat(s.Session.Path); statErr == nil {
				if err := sessions.LoadSession(s.Session.Path); err != nil {
					return fmt.Errorf("loading session %q: %w", s.Session.Path, err)
				}
			}

			scripts := script.New(engine, logger)
			if err := scripts.Setup(); err != nil {
				return fmt.Errorf("starting script manager: %w", err)
			}
			defer scripts.Close()
			sessions.SetPostLoadCallback(func() {
				scripts.SetAutoUpdate(true)
			})

			var metrics *telemetry.Manager
			if s.Metrics.Enabled {
				metrics = telemetry.New("enginecore")
				if _, err := metrics.ObserveEngine(engine); err != nil {
					return fmt.Errorf("starting telemetry: %w", err)
				}
				defer metrics.Close()
				go serveMetricsHandler(metrics, s.Metrics.Addr)
			}

			if s.Session.AutosaveSeconds > 0 {
				sessions.StartAutoSave(s.Session.Path, time.Duration(s.Session.AutosaveSeconds)*time.Second)
				defer sessions.StopAutoSave()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			slog.Info("enginectl running", "session", s.Session.Path)
			<-sigCh

			slog.Info("shutting down, saving session", "session", s.Session.Path)
			if err := sessions.SaveSessionSync(s.Session.Path); err != nil {
				slog.Error("save on exit failed", "error", err)
			}
			return nil
		},
	}
	return cmd
}
