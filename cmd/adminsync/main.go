package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/app"
	"github.com/deliverly/adminsync/internal/config"
	"github.com/deliverly/adminsync/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/adminsync.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}
	log, err := logger.New(logCfg)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer log.Sync()

	log.Info("Starting admin sync service",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("websocket_url", cfg.WebSocketURL))

	token := os.Getenv("ADMINSYNC_TOKEN")
	if token == "" {
		log.Fatal("ADMINSYNC_TOKEN is not set")
	}
	credential := func() (string, error) { return token, nil }

	registry := prometheus.NewRegistry()

	svc, err := app.New(cfg, log, credential, registry,
		app.WithUnauthorizedHook(func() {
			log.Warn("Session credential rejected; reconnect after re-authenticating")
		}))
	if err != nil {
		log.Fatal("Failed to assemble sync service", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Init(ctx); err != nil {
		log.Fatal("Failed to initialize sync service", zap.Error(err))
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			log.Info("Metrics endpoint listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Surface connection state transitions in the log; the dashboard's
	// indicator consumes the same watch channel.
	states, cancelWatch := svc.WatchConnection()
	go func() {
		for st := range states {
			log.Info("Connection state changed", zap.Stringer("state", st))
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")
	cancelWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	if err := svc.Teardown(shutdownCtx); err != nil {
		log.Error("Teardown did not complete cleanly", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}
