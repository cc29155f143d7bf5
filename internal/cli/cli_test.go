package cli

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTestContext(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml file with overrides", func(t *testing.T) {
		path := filepath.Join(dir, "context.yaml")
		require.NoError(t, os.WriteFile(path, []byte("test_type: load\nvirtual_users: 200\ntarget: checkout\n"), 0o644))

		ctx, err := loadTestContext(path, []string{"target=search", "ramp_up=true"})
		require.NoError(t, err)
		assert.Equal(t, "load", ctx["test_type"])
		assert.Equal(t, 200, ctx["virtual_users"])
		assert.Equal(t, "search", ctx["target"])
		assert.Equal(t, true, ctx["ramp_up"])
	})

	t.Run("json file", func(t *testing.T) {
		path := filepath.Join(dir, "context.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"duration": "30m", "vus": 50}`), 0o644))

		ctx, err := loadTestContext(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "30m", ctx["duration"])
		assert.Equal(t, 50, ctx["vus"])
	})

	t.Run("typed pairs", func(t *testing.T) {
		ctx, err := loadTestContext("", []string{"vus=200", "error_rate=0.5", "env = staging"})
		require.NoError(t, err)
		assert.Equal(t, int64(200), ctx["vus"])
		assert.Equal(t, 0.5, ctx["error_rate"])
		assert.Equal(t, "staging", ctx["env"])
	})

	t.Run("nothing given", func(t *testing.T) {
		ctx, err := loadTestContext("", nil)
		require.NoError(t, err)
		assert.Nil(t, ctx)
	})

	t.Run("invalid pair", func(t *testing.T) {
		_, err := loadTestContext("", []string{"novalue"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key=value")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadTestContext(filepath.Join(dir, "nope.yaml"), nil)
		require.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- just\n- a list\n"), 0o644))
		_, err := loadTestContext(path, nil)
		require.Error(t, err)
	})
}

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestGatherInputs(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "app.log"), []byte("line\n"), 0o644))
	writeZip(t, filepath.Join(src, "run.zip"), map[string]string{"results/summary.csv": "a,b\n1,2\n"})

	work := t.TempDir()
	files, err := gatherInputs([]string{src}, work, 1<<20, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := map[string]string{}
	for _, f := range files {
		byName[f.Name] = f.SourceZip
	}
	assert.Contains(t, byName, "app.log")
	assert.Equal(t, "run.zip", byName["results/summary.csv"])
}

func TestGatherInputs_MissingPath(t *testing.T) {
	_, err := gatherInputs([]string{filepath.Join(t.TempDir(), "missing")}, t.TempDir(), 1<<20, slog.Default())
	require.Error(t, err)
}

func sampleJob(status progress.JobStatus) *progress.Job {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &progress.Job{
		ID:       "job-1",
		Status:   status,
		Step:     "preprocessing",
		Progress: 42,
		Message:  "Summarizing chunk 2/3 of app.log",
		Logs:     []string{"one", "two", "three", "four", "five", "six"},
		Files: []progress.FileRecord{
			{Name: "app.log", Status: progress.FileStatusSummarizing, Progress: 40, ChunkIndex: 2, ChunkTotal: 3},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(90 * time.Second),
	}
}

func TestProgressModel_Update(t *testing.T) {
	m := newProgressModel(nil, sampleJob(progress.JobStatusRunning))

	content := m.renderContent()
	assert.Contains(t, content, "preprocessing")
	assert.Contains(t, content, "chunk 2/3")
	assert.Contains(t, content, "Ctrl+C")

	t.Run("running keeps polling", func(t *testing.T) {
		next, cmd := m.Update(jobUpdateMsg{job: sampleJob(progress.JobStatusRunning)})
		assert.False(t, next.(progressModel).done)
		assert.NotNil(t, cmd)
	})

	t.Run("completed stops", func(t *testing.T) {
		next, _ := m.Update(jobUpdateMsg{job: sampleJob(progress.JobStatusCompleted)})
		pm := next.(progressModel)
		assert.True(t, pm.done)
		assert.NoError(t, pm.err)
		assert.Contains(t, pm.renderContent(), "Completed")
	})

	t.Run("failed carries the job error", func(t *testing.T) {
		job := sampleJob(progress.JobStatusFailed)
		job.Error = "Analysis failed: boom"
		next, _ := m.Update(jobUpdateMsg{job: job})
		pm := next.(progressModel)
		require.Error(t, pm.err)
		assert.Equal(t, "Analysis failed: boom", pm.err.Error())
	})

	t.Run("fetch error stops", func(t *testing.T) {
		next, _ := m.Update(jobUpdateMsg{err: errors.New("connection refused")})
		pm := next.(progressModel)
		assert.True(t, pm.done)
		assert.ErrorContains(t, pm.err, "connection refused")
	})
}

func TestShowJob(t *testing.T) {
	job := sampleJob(progress.JobStatusFailed)
	job.Error = "Analysis failed: boom"

	var buf bytes.Buffer
	showJob(&buf, job)
	out := buf.String()

	assert.Contains(t, out, "Job: job-1")
	assert.Contains(t, out, "Status: failed")
	assert.Contains(t, out, "Duration: 1m30s")
	assert.Contains(t, out, "Error: Analysis failed: boom")
	assert.Contains(t, out, "app.log")
	assert.NotContains(t, out, "- one", "only the most recent log lines are shown")
	assert.Contains(t, out, "- six")
}

func TestPrintResult(t *testing.T) {
	res := &report.Result{
		Summary:         "p95 latency doubled after minute 12.",
		Insights:        "- GC pauses up to 800ms",
		Recommendations: "- Increase heap",
		ModelUsed:       "gpt-4.1",
		AnalyzedAt:      "2026-03-01T12:00:00Z",
		Preprocessing: report.PreprocessingDigest{Files: []report.FileDigest{
			{Name: "app.log", FileType: "log", Chunks: 2, TotalLines: 800},
		}},
	}

	var buf bytes.Buffer
	printResult(&buf, res, 60, defaultTheme)
	out := buf.String()

	assert.Contains(t, out, report.SectionExecutiveSummary)
	assert.Contains(t, out, "p95 latency doubled")
	assert.Contains(t, out, "GC pauses")
	assert.Contains(t, out, "Increase heap")
	assert.Contains(t, out, "app.log (log, 800 lines, 2 chunks)")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSON(io.Discard, path, map[string]int{"a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(data))

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, "-", map[string]int{"b": 2}))
	assert.JSONEq(t, `{"b": 2}`, buf.String())
}

type stubSource struct{ job progress.Job }

func (s stubSource) Get(string) (progress.Job, bool) { return s.job, true }

func TestShowProgressBar(t *testing.T) {
	var buf bytes.Buffer
	stop := showProgressBar(stubSource{job: *sampleJob(progress.JobStatusRunning)}, "job-1", &buf)
	stop()
	assert.NotEmpty(t, buf.String())
}
