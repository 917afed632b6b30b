package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aiuser8/thallos-llm-service/internal/app"
	"github.com/Aiuser8/thallos-llm-service/internal/config"
	"github.com/Aiuser8/thallos-llm-service/internal/httpapi"
	"github.com/Aiuser8/thallos-llm-service/internal/logging"
	"github.com/Aiuser8/thallos-llm-service/internal/monitor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query gateway as an HTTP service",
	Long: `Start the gateway's HTTP surface: POST /query answers a natural language
question, GET /healthz reports liveness. Configuration is loaded from the
environment (and an optional .env file); see internal/config for the full
list of GH_SQL_* variables.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	cfg.ExpandAllPaths()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.Warnf("falling back to stderr logger: %v", err)
	}

	ctx := cmd.Context()

	gw, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	requestDeadline, err := time.ParseDuration(cfg.Server.RequestDeadline)
	if err != nil {
		requestDeadline = 120 * time.Second
	}

	handler := httpapi.New(gw.Coordinator, cfg.Server.APIKey, requestDeadline)

	mux := http.NewServeMux()
	handler.Routes(mux)

	memMonitor := monitor.New(512, 5*time.Minute)
	memMonitor.Start(ctx, 30*time.Second)
	defer memMonitor.Stop()

	go logMemoryPressure(ctx, memMonitor)

	readTimeout, _ := time.ParseDuration(cfg.Server.ReadTimeout)
	writeTimeout, _ := time.ParseDuration(cfg.Server.WriteTimeout)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		logging.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-sigCh:
		logging.Info("shutdown signal received, draining in-flight requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-serveErr
}

// logMemoryPressure emits a warning whenever sampled memory pressure
// climbs past 80%, so sustained growth from a runaway query shows up in
// logs well before the process is killed for OOM.
func logMemoryPressure(ctx context.Context, m *monitor.MemoryMonitor) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if pressure := m.GetMemoryPressure(); pressure > 0.8 {
				logging.Warnf("high memory pressure: %s", m.FormatStats())
			}
		case <-ctx.Done():
			return
		}
	}
}
