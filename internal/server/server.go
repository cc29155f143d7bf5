// Package server exposes the analysis pipeline over HTTP with synchronous
// and progress-tracked endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/report"
	"github.com/rs/cors"
)

// Analyzer runs a full analysis. *report.Analyzer implements it.
type Analyzer interface {
	Analyze(ctx context.Context, files []preprocess.FileInput, testContext report.TestContext, jobID string) (*report.Result, error)
}

// Options configures a Server.
type Options struct {
	Version string
	// MaxUploadBytes bounds a request body; 0 means 512 MiB.
	MaxUploadBytes int64
	// TempDir is the parent of per-request upload directories; "" uses the OS default.
	TempDir string
	// WatchInterval is the websocket polling period; 0 means 500ms.
	WatchInterval time.Duration
}

// Server wires HTTP routes to the analyzer and progress tracker and owns
// the lifetime of background jobs.
type Server struct {
	analyzer  Analyzer
	tracker   *progress.Tracker
	collector *metrics.Collector
	logger    *slog.Logger
	opts      Options

	engine   *gin.Engine
	upgrader websocket.Upgrader

	jobs      sync.WaitGroup
	jobCtx    context.Context
	cancelJob context.CancelFunc
}

// New creates a Server and registers its routes.
func New(analyzer Analyzer, tracker *progress.Tracker, collector *metrics.Collector, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 512 << 20
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 500 * time.Millisecond
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		analyzer:  analyzer,
		tracker:   tracker,
		collector: collector,
		logger:    logger,
		opts:      opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		jobCtx:    jobCtx,
		cancelJob: cancel,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), LoggingMiddleware(s.logger, s.collector))

	r.POST("/analyze", s.analyzeSync)
	r.POST("/analyze/progress", s.analyzeAsync)
	r.GET("/analyze/progress/:id", s.getProgress)
	r.GET("/analyze/progress/:id/watch", s.watchProgress)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok\n")
	})
	r.GET("/stats", s.stats)
	r.GET("/metrics", gin.WrapH(s.collector.Handler()))
	return r
}

// Handler returns the root handler with permissive CORS applied.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Type", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return c.Handler(s.engine)
}

// Shutdown waits for background jobs to finish. When ctx expires first the
// remaining jobs are cancelled and ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelJob()
		return nil
	case <-ctx.Done():
		s.cancelJob()
		<-done
		return ctx.Err()
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then stops accepting
// requests and drains background jobs within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Long for synchronous analyses
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.cancelJob()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	httpErr := httpServer.Shutdown(shutdownCtx)
	jobsErr := s.Shutdown(shutdownCtx)
	if err := errors.Join(httpErr, jobsErr); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.opts.Version,
		"jobs":    s.tracker.Len(),
		"llm":     s.collector.Snapshot(),
	})
}
