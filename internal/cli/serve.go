package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/raphaelgruber/perfsight/internal/pipeline"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP server",
	Long: `Serve the analysis API: synchronous and progress-tracked analysis,
a websocket progress stream, /health, /stats and Prometheus /metrics.

Jobs live in memory and are lost on restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default $PERFSIGHT_SERVER_PORT or 8484)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := servePort
	if port == "" {
		port = cfg.ServerPort
	}
	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	tracker := progress.NewTracker(logger)
	collector := metrics.NewCollector()
	analyzer, err := pipeline.New(ctx, cfg, pipeline.Deps{
		Reporter:  tracker,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	srv := server.New(analyzer, tracker, collector, logger, server.Options{
		Version:        Version,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	logger.Info("starting perfsight server", "port", port, "version", Version)
	return srv.ListenAndServe(ctx, ":"+port, shutdownTimeout)
}
