package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetmon/internal/alert"
	"github.com/dwsmith1983/fleetmon/internal/config"
	"github.com/dwsmith1983/fleetmon/internal/metrics"
	"github.com/dwsmith1983/fleetmon/internal/monitor"
	"github.com/dwsmith1983/fleetmon/internal/provider/redis"
	"github.com/dwsmith1983/fleetmon/internal/scheduler"
	"github.com/dwsmith1983/fleetmon/internal/server"
)

const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring engine and expose /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory containing "+config.FileName)
	return cmd
}

func runServe(dir string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)
	ctx := context.Background()

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg := metrics.New(promReg)

	// Alerts
	sinkTimeout, err := config.Duration(cfg.Scheduler.SinkTimeout, alert.DefaultSinkTimeout)
	if err != nil {
		return fmt.Errorf("scheduler.sinkTimeout: %w", err)
	}
	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger,
		alert.WithSinkTimeout(sinkTimeout),
		alert.WithMetrics(reg),
	)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}

	// Provider
	prov := redis.New(cfg.Redis)
	prov.SetLogger(logger)
	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}
	defer func() { _ = prov.Stop(context.Background()) }()

	// System source
	source, pg, err := systemSource(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to Postgres: %w", err)
	}
	if pg != nil {
		defer pg.Close()
	}

	// Monitor
	thresholds, err := monitor.ThresholdsFromConfig(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	storeTimeout, err := config.Duration(cfg.Redis.OpTimeout, 0)
	if err != nil {
		return fmt.Errorf("redis.opTimeout: %w", err)
	}
	mon, err := monitor.New(monitor.Options{
		Registry:     reg,
		Dispatcher:   dispatcher,
		Provider:     prov,
		System:       source,
		Thresholds:   thresholds,
		Logger:       logger,
		BufferMax:    cfg.Scheduler.BufferMax,
		StoreTimeout: storeTimeout,
	})
	if err != nil {
		return err
	}

	// Scheduler
	iv, err := intervals(cfg.Scheduler)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(logger, mon.Tasks(iv)...)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	// Server
	stores := map[string]server.Pinger{"redis": prov}
	if pg != nil {
		stores["postgres"] = pg
	}
	srv := server.New(server.Options{
		Addr:     cfg.Server.Addr,
		Gatherer: promReg,
		Stores:   stores,
		Tasks:    sched.Status,
		Buffered: mon.Buffer().Len,
		Recorder: mon,
		Logger:   logger,
	})

	sched.Start(ctx)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	sched.Stop(shutdownCtx)
	if err := mon.Flush(shutdownCtx); err != nil {
		logger.Error("final flush failed", "buffered", mon.Buffer().Len(), "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("alert dispatcher close", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server: %w", serveErr)
	}
	color.Green("fleetmon stopped gracefully")
	return nil
}
