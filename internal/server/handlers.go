package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/report"
)

// StartResponse is returned by POST /analyze/progress.
type StartResponse struct {
	JobID           string       `json:"job_id"`
	InitialProgress progress.Job `json:"initial_progress"`
}

// upload is a parsed analysis request whose files live in dir.
type upload struct {
	dir     string
	files   []preprocess.FileInput
	context report.TestContext
}

func (u *upload) cleanup() {
	_ = os.RemoveAll(u.dir)
}

func (s *Server) handleError(c *gin.Context, status int, detail string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// readUpload parses the multipart form, validates the context field and
// stores the files in a fresh temp dir. On error the response is written.
func (s *Server) readUpload(c *gin.Context) (*upload, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.handleError(c, http.StatusRequestEntityTooLarge, "Upload too large", err)
			return nil, false
		}
		s.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return nil, false
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		s.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return nil, false
	}

	raw := "{}"
	if v := form.Value["context"]; len(v) > 0 && v[0] != "" {
		raw = v[0]
	}
	var testContext report.TestContext
	if err := json.Unmarshal([]byte(raw), &testContext); err != nil {
		s.handleError(c, http.StatusBadRequest, "Invalid JSON in context", err)
		return nil, false
	}

	dir, err := os.MkdirTemp(s.opts.TempDir, "perfsight-*")
	if err != nil {
		s.handleError(c, http.StatusInternalServerError, fmt.Sprintf("Failed to start analysis: %v", err), err)
		return nil, false
	}
	u := &upload{dir: dir, context: testContext}

	saved, err := saveUploads(headers, dir)
	if err != nil {
		u.cleanup()
		s.handleError(c, http.StatusInternalServerError, fmt.Sprintf("Failed to start analysis: %v", err), err)
		return nil, false
	}
	u.files = expandArchives(saved, dir, s.opts.MaxUploadBytes, s.logger)

	names := make([]string, len(u.files))
	for i, f := range u.files {
		names[i] = f.DisplayName()
	}
	s.logger.Info("upload received", "uploaded", len(headers), "files", names, "context_keys", testContext.Keys(), "dir", dir)
	return u, true
}

// analyzeSync handles POST /analyze: the response carries the full result.
func (s *Server) analyzeSync(c *gin.Context) {
	u, ok := s.readUpload(c)
	if !ok {
		return
	}
	defer u.cleanup()

	result, err := s.analyzer.Analyze(c.Request.Context(), u.files, u.context, "")
	if err != nil {
		s.handleError(c, http.StatusInternalServerError, fmt.Sprintf("Analysis failed: %v", err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// analyzeAsync handles POST /analyze/progress: the analysis runs in the
// background and is observed through the progress endpoints.
func (s *Server) analyzeAsync(c *gin.Context) {
	u, ok := s.readUpload(c)
	if !ok {
		return
	}

	jobID := s.tracker.CreateJob(preprocess.Specs(u.files))
	s.tracker.Update(jobID, progress.Update{
		Step:    "queued",
		Stage:   "initializing",
		Message: fmt.Sprintf("Received %d files", len(u.files)),
		Log:     fmt.Sprintf("Received %d files for analysis", len(u.files)),
	})
	initial, _ := s.tracker.Get(jobID)

	s.jobs.Add(1)
	s.collector.JobStarted()
	go s.runJob(jobID, u)

	c.JSON(http.StatusOK, StartResponse{JobID: jobID, InitialProgress: initial})
}

func (s *Server) runJob(jobID string, u *upload) {
	defer s.jobs.Done()
	defer s.collector.JobFinished()
	defer u.cleanup()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("analysis job panicked", "job_id", jobID, "panic", r)
			s.tracker.Fail(jobID, fmt.Sprintf("Analysis failed: %v", r))
		}
	}()

	start := time.Now()
	result, err := s.analyzer.Analyze(s.jobCtx, u.files, u.context, jobID)
	if err != nil {
		s.logger.Error("analysis job failed", "job_id", jobID, "error", err)
		s.tracker.Fail(jobID, fmt.Sprintf("Analysis failed: %v", err))
		return
	}
	s.tracker.SetResult(jobID, result)
	s.logger.Info("analysis job completed", "job_id", jobID, "duration_ms", time.Since(start).Milliseconds())
}

// getProgress handles GET /analyze/progress/:id.
func (s *Server) getProgress(c *gin.Context) {
	job, ok := s.tracker.Get(c.Param("id"))
	if !ok {
		s.handleError(c, http.StatusNotFound, "Job not found", nil)
		return
	}
	c.JSON(http.StatusOK, job)
}

// watchProgress streams job snapshots over a websocket whenever the job
// changes, and closes the stream once the job is terminal.
func (s *Server) watchProgress(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.tracker.Get(id); !ok {
		s.handleError(c, http.StatusNotFound, "Job not found", nil)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	// drain client frames so close and ping are processed
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.WatchInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		job, ok := s.tracker.Get(id)
		if !ok {
			return
		}
		if !job.UpdatedAt.Equal(last) {
			last = job.UpdatedAt
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(job); err != nil {
				s.logger.Debug("websocket write failed", "job_id", id, "error", err)
				return
			}
		}
		if job.IsTerminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}

		select {
		case <-gone:
			return
		case <-s.jobCtx.Done():
			return
		case <-ticker.C:
		}
	}
}
