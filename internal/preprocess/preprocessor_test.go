package preprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/perfsight/internal/llm"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, dir, name, content string) FileInput {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return FileInput{FileID: "id-" + name, Name: name, Path: path}
}

func newTestPreprocessor(caller llm.Caller, reporter Reporter) *Preprocessor {
	cfg := ChunkConfig{MaxLines: 2, MaxChars: 1000}
	s := NewSummarizer(caller, SummarizerOptions{Chunk: cfg, ChunkWorkers: 2})
	return New(s, Options{Chunk: cfg, FileWorkers: 3, Reporter: reporter})
}

func TestPreprocess_OutputFollowsInputOrder(t *testing.T) {
	dir := t.TempDir()
	var files []FileInput
	var rules []llm.FakeRule
	for i := range 6 {
		name := fmt.Sprintf("f%d.log", i)
		files = append(files, writeInput(t, dir, name, "line1\nline2\nline3"))
		// earlier files are slower so completion order is reversed
		rules = append(rules, llm.FakeRule{
			Match:    "File: " + name + "\n",
			Response: "summary " + name,
			Delay:    time.Duration(6-i) * 5 * time.Millisecond,
		})
	}

	p := newTestPreprocessor(llm.NewFake(rules...), nil)
	got := p.Preprocess(context.Background(), files, "")

	require.Len(t, got, len(files))
	for i, s := range got {
		assert.Equal(t, files[i].Name, s.Name)
		assert.Equal(t, FileTypeLog, s.FileType)
		assert.Equal(t, "summary "+files[i].Name, s.Summary)
		assert.Equal(t, 2, s.Chunks)
		assert.Len(t, s.ChunkSummaries, 2)
		assert.Equal(t, 3, s.TotalLines)
	}
}

func TestPreprocess_Placeholders(t *testing.T) {
	dir := t.TempDir()
	good := writeInput(t, dir, "good.csv", "ts,latency\n1,20")
	empty := writeInput(t, dir, "empty.txt", "")
	missing := FileInput{Name: "gone.log", Path: filepath.Join(dir, "gone.log")}
	broken := writeInput(t, dir, "broken.log", "oops")

	fake := llm.NewFake(
		llm.FakeRule{Match: "File: broken.log\nType", Err: errors.New("meta exploded")},
		llm.FakeRule{Match: "File: good.csv\nType", Response: "good meta"},
	)
	p := newTestPreprocessor(fake, nil)
	got := p.Preprocess(context.Background(), []FileInput{good, empty, missing, broken}, "")

	require.Len(t, got, 4)
	assert.Equal(t, "good meta", got[0].Summary)
	assert.Equal(t, FileTypeCSV, got[0].FileType)

	assert.Equal(t, SummaryEmpty, got[1].Summary)
	assert.Zero(t, got[1].Chunks)
	assert.Zero(t, got[1].TotalLines)
	assert.NotNil(t, got[1].ChunkSummaries)

	assert.Equal(t, SummaryUnreadable, got[2].Summary)
	assert.Zero(t, got[2].TotalLines)

	assert.True(t, strings.HasPrefix(got[3].Summary, "[Preprocessing failed:"), got[3].Summary)
	assert.Contains(t, got[3].Summary, "meta exploded")
	assert.Equal(t, "broken.log", got[3].Name)
	assert.Zero(t, got[3].Chunks)

	assert.Zero(t, fake.CallsMatching("File: empty.txt"))
	assert.Zero(t, fake.CallsMatching("File: gone.log"))
}

func TestPreprocess_ReportsProgress(t *testing.T) {
	dir := t.TempDir()
	files := []FileInput{
		writeInput(t, dir, "a.log", "1\n2\n3\n4\n5"),
		writeInput(t, dir, "b.csv", "x"),
		writeInput(t, dir, "c.txt", ""),
		writeInput(t, dir, "d.log", "fails"),
	}
	specs := make([]progress.FileSpec, len(files))
	for i, f := range files {
		specs[i] = progress.FileSpec{FileID: f.FileID, Name: f.Name, FileType: f.Type()}
	}

	tracker := progress.NewTracker(nil)
	jobID := tracker.CreateJob(specs)
	tracker.Update(jobID, progress.Update{Progress: progress.Float(EnumerationShare)})

	fake := llm.NewFake(llm.FakeRule{Match: "File: d.log\nType", Err: errors.New("down")})
	p := newTestPreprocessor(fake, tracker)
	p.Preprocess(context.Background(), files, jobID)

	job, ok := tracker.Get(jobID)
	require.True(t, ok)
	assert.InDelta(t, EnumerationShare+PreprocessShare, job.Progress, 1e-9)
	assert.Equal(t, progress.JobStatusRunning, job.Status)

	require.Len(t, job.Files, 4)
	for _, rec := range job.Files[:3] {
		assert.Equal(t, progress.FileStatusDone, rec.Status, rec.Name)
		assert.Equal(t, 100.0, rec.Progress, rec.Name)
	}
	assert.Equal(t, 3, job.Files[0].ChunkTotal)
	assert.Equal(t, progress.FileStatusFailed, job.Files[3].Status)
	assert.NotEmpty(t, job.Logs)
}

type recordingReporter struct {
	updates []progress.Update
}

func (r *recordingReporter) Update(jobID string, u progress.Update) {
	r.updates = append(r.updates, u)
}

func TestPreprocess_OverallProgressMonotonic(t *testing.T) {
	dir := t.TempDir()
	var files []FileInput
	for i := range 4 {
		files = append(files, writeInput(t, dir, fmt.Sprintf("m%d.log", i), strings.Repeat("row\n", 7)))
	}

	rec := &recordingReporter{}
	s := NewSummarizer(llm.NewFake(), SummarizerOptions{Chunk: ChunkConfig{MaxLines: 2, MaxChars: 100}})
	// sequential pools keep the reporter free of locking
	seq := func(int) (Pool, error) { return nil, errors.New("sequential") }
	s.chunkPool.Factory = seq
	p := New(s, Options{Chunk: ChunkConfig{MaxLines: 2, MaxChars: 100}, PoolFactory: seq, Reporter: rec})

	p.Preprocess(context.Background(), files, "job-1")

	last := EnumerationShare
	for _, u := range rec.updates {
		if u.Progress == nil {
			continue
		}
		assert.GreaterOrEqual(t, *u.Progress, last)
		last = *u.Progress
	}
	assert.InDelta(t, EnumerationShare+PreprocessShare, last, 1e-9)
}

func TestPreprocess_NoFiles(t *testing.T) {
	p := newTestPreprocessor(llm.NewFake(), progress.NewTracker(nil))
	assert.Empty(t, p.Preprocess(context.Background(), nil, "job"))
}
