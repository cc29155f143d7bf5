// Package main provides the standalone perfsight HTTP server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/perfsight/internal/config"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/raphaelgruber/perfsight/internal/pipeline"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/server"
)

var version = "dev"

func main() {
	port := flag.String("port", "", "listen port (default $PERFSIGHT_SERVER_PORT or 8484)")
	flag.Parse()

	cfg := config.Load()
	if *port == "" {
		*port = cfg.ServerPort
	}

	logger, closeLogs := config.SetupLogger(cfg)
	defer func() {
		if err := closeLogs(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := progress.NewTracker(logger)
	collector := metrics.NewCollector()
	analyzer, err := pipeline.New(ctx, cfg, pipeline.Deps{
		Reporter:  tracker,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("failed to create analysis pipeline", "error", err)
		os.Exit(1)
	}

	srv := server.New(analyzer, tracker, collector, logger, server.Options{
		Version:        version,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	slog.Info("starting perfsight-server", "port", *port, "version", version)
	if err := srv.ListenAndServe(ctx, ":"+*port, 10*time.Second); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
