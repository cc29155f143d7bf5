package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/perfsight/internal/client"
	"github.com/raphaelgruber/perfsight/internal/llm"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/report"
	"github.com/raphaelgruber/perfsight/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportMarkdown = "## Executive Summary\nStable under load.\n## Key Metrics & Findings\n- p99 340ms"

func newServer(t *testing.T, rules ...llm.FakeRule) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rules = append(rules, llm.FakeRule{Match: "senior performance engineer", Response: reportMarkdown})
	fake := llm.NewFake(rules...)
	tracker := progress.NewTracker(logger)

	pre := preprocess.New(preprocess.NewSummarizer(fake, preprocess.SummarizerOptions{Logger: logger}), preprocess.Options{Reporter: tracker, Logger: logger})
	analyzer := report.New(pre, fake, report.Options{Model: "big", Reporter: tracker, Logger: logger})
	srv := server.New(analyzer, tracker, metrics.NewCollector(), logger, server.Options{
		TempDir:       t.TempDir(),
		WatchInterval: 10 * time.Millisecond,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ts
}

func writeFiles(t *testing.T, files map[string]string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("PERFSIGHT_SERVER_URL", "")
	c := client.New("")
	require.NotNil(t, c)
}

func TestHealth(t *testing.T) {
	ts := newServer(t)
	require.NoError(t, client.New(ts.URL+"/").Health(context.Background()))
}

func TestAnalyze(t *testing.T) {
	ts := newServer(t)
	c := client.New(ts.URL)

	paths := writeFiles(t, map[string]string{"app.log": "GC pause 1.2s\nOOM warning"})
	result, err := c.Analyze(context.Background(), paths, report.TestContext{"Type": "Soak"})
	require.NoError(t, err)
	assert.Equal(t, "Stable under load.", result.Summary)
	assert.Equal(t, "- p99 340ms", result.Insights)
	require.Len(t, result.Preprocessing.Files, 1)
	assert.Equal(t, "app.log", result.Preprocessing.Files[0].Name)
}

func TestAnalyze_Errors(t *testing.T) {
	ts := newServer(t, llm.FakeRule{Match: "senior performance engineer", Err: errors.New("quota exceeded")})
	c := client.New(ts.URL)

	_, err := c.Analyze(context.Background(), nil, nil)
	assert.Error(t, err, "no paths")

	_, err = c.Analyze(context.Background(), []string{"/does/not/exist.log"}, nil)
	assert.Error(t, err)

	paths := writeFiles(t, map[string]string{"a.log": "x"})
	_, err = c.Analyze(context.Background(), paths, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Analysis failed")
}

func TestSubmitWatchAndGet(t *testing.T) {
	ts := newServer(t, llm.FakeRule{Match: "Chunk 1 of", Response: "chunk", Delay: 30 * time.Millisecond})
	c := client.New(ts.URL)
	ctx := context.Background()

	paths := writeFiles(t, map[string]string{"a.log": "1\n2", "b.csv": "x,y\n1,2"})
	start, err := c.Submit(ctx, paths, nil)
	require.NoError(t, err)
	require.NotEmpty(t, start.JobID)
	assert.Len(t, start.InitialProgress.Files, 2)

	var updates []progress.Job
	err = c.Watch(ctx, start.JobID, func(job progress.Job) error {
		updates = append(updates, job)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, updates)
	assert.Equal(t, progress.JobStatusCompleted, updates[len(updates)-1].Status)

	job, err := c.GetJob(ctx, start.JobID)
	require.NoError(t, err)
	assert.Equal(t, progress.JobStatusCompleted, job.Status)

	result, err := client.ResultOf(job)
	require.NoError(t, err)
	assert.Equal(t, "Stable under load.", result.Summary)
}

func TestWatch_CallbackErrorStops(t *testing.T) {
	ts := newServer(t, llm.FakeRule{Match: "Chunk", Response: "chunk", Delay: 200 * time.Millisecond})
	c := client.New(ts.URL)

	paths := writeFiles(t, map[string]string{"a.log": "1"})
	start, err := c.Submit(context.Background(), paths, nil)
	require.NoError(t, err)

	stop := errors.New("stop")
	err = c.Watch(context.Background(), start.JobID, func(progress.Job) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestUnknownJob(t *testing.T) {
	ts := newServer(t)
	c := client.New(ts.URL)

	_, err := c.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, client.ErrJobNotFound)

	err = c.Watch(context.Background(), "missing", func(progress.Job) error { return nil })
	assert.ErrorIs(t, err, client.ErrJobNotFound)
}

func TestResultOf_NoResult(t *testing.T) {
	_, err := client.ResultOf(&progress.Job{ID: "x"})
	assert.Error(t, err)
}

func TestServerError_NonJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := client.New(ts.URL).GetJob(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "boom")
}
