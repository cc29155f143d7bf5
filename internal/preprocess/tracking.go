package preprocess

import (
	"fmt"
	"sync"

	"github.com/raphaelgruber/perfsight/internal/progress"
)

// Overall progress budget. The first EnumerationShare percent belongs to the
// caller (file enumeration); PreprocessShare is split evenly across files;
// the rest belongs to report assembly.
const (
	EnumerationShare = 10.0
	PreprocessShare  = 60.0
)

// Within one file's share, chunk summaries account for chunkWeight and the
// meta-summary for the remainder. File-level progress uses the same split
// after a small chunking step.
const (
	chunkWeight       = 0.8
	fileChunkingPct   = 5.0
	fileChunksDonePct = 90.0
)

// Reporter receives progress updates for a job. *progress.Tracker implements it.
type Reporter interface {
	Update(jobID string, u progress.Update)
}

// jobTracking accumulates the preprocessing share of one job across files.
type jobTracking struct {
	reporter Reporter
	jobID    string
	perFile  float64

	mu      sync.Mutex
	accrued float64
}

func newJobTracking(reporter Reporter, jobID string, fileCount int) *jobTracking {
	if reporter == nil || jobID == "" || fileCount == 0 {
		return nil
	}
	return &jobTracking{
		reporter: reporter,
		jobID:    jobID,
		perFile:  PreprocessShare / float64(fileCount),
	}
}

// add accrues delta and returns the resulting overall progress.
func (j *jobTracking) add(delta float64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.accrued = min(j.accrued+delta, PreprocessShare)
	return EnumerationShare + j.accrued
}

func (j *jobTracking) forFile(f FileInput) *fileTracking {
	if j == nil {
		return nil
	}
	return &fileTracking{job: j, fileID: f.FileID, name: f.DisplayName()}
}

// fileTracking reports progress for one file. A nil *fileTracking disables
// reporting; every method is nil-safe.
type fileTracking struct {
	job    *jobTracking
	fileID string
	name   string

	mu        sync.Mutex
	completed int
	accrued   float64
}

func (f *fileTracking) send(u progress.Update) {
	u.FileID = f.fileID
	u.FileName = f.name
	f.job.reporter.Update(f.job.jobID, u)
}

// claim accrues delta of this file's share, never exceeding it.
func (f *fileTracking) claim(delta float64) float64 {
	f.mu.Lock()
	delta = min(delta, f.job.perFile-f.accrued)
	f.accrued += delta
	f.mu.Unlock()
	return f.job.add(delta)
}

func (f *fileTracking) chunking() {
	if f == nil {
		return
	}
	f.send(progress.Update{
		Step:       "chunking",
		Stage:      "preprocessing",
		FileStatus: progress.FileStatusChunking,
		Message:    fmt.Sprintf("Chunking %s", f.name),
		Log:        fmt.Sprintf("Reading and chunking %s", f.name),
	})
}

func (f *fileTracking) chunked(total, lines int) {
	if f == nil {
		return
	}
	f.send(progress.Update{
		FileProgress: progress.Float(fileChunkingPct),
		ChunkIndex:   progress.Int(0),
		ChunkTotal:   progress.Int(total),
		Log:          fmt.Sprintf("%s: %d lines in %d chunks", f.name, lines, total),
	})
}

// chunkStarted is sent before the upstream call; it carries no progress delta.
func (f *fileTracking) chunkStarted(index, total int) {
	if f == nil {
		return
	}
	f.send(progress.Update{
		Step:       "summarizing_chunk",
		Stage:      "preprocessing",
		FileStatus: progress.FileStatusSummarizing,
		ChunkIndex: progress.Int(index + 1),
		ChunkTotal: progress.Int(total),
		Message:    fmt.Sprintf("Summarizing %s chunk %d/%d", f.name, index+1, total),
	})
}

// chunkFinished advances file and job progress by one chunk's portion.
func (f *fileTracking) chunkFinished(index, total int, err error) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.completed++
	completed := f.completed
	f.mu.Unlock()

	filePct := fileChunkingPct + (fileChunksDonePct-fileChunkingPct)*float64(completed)/float64(total)
	overall := f.claim(f.job.perFile * chunkWeight / float64(total))

	msg := fmt.Sprintf("%s chunk %d/%d summarized", f.name, index+1, total)
	if err != nil {
		msg = fmt.Sprintf("%s chunk %d/%d failed: %v", f.name, index+1, total, err)
	}
	f.send(progress.Update{
		Progress:     progress.Float(overall),
		Step:         "summarizing_chunk",
		Stage:        "preprocessing",
		FileStatus:   progress.FileStatusSummarizing,
		FileProgress: progress.Float(filePct),
		ChunkIndex:   progress.Int(index + 1),
		ChunkTotal:   progress.Int(total),
		Log:          msg,
	})
}

func (f *fileTracking) metaStarted() {
	if f == nil {
		return
	}
	f.send(progress.Update{
		Step:    "file_summary",
		Stage:   "preprocessing",
		Message: fmt.Sprintf("Consolidating summaries for %s", f.name),
	})
}

// done claims whatever is left of the file's share and marks it done.
func (f *fileTracking) done(note string) {
	if f == nil {
		return
	}
	overall := f.claim(f.job.perFile)
	f.send(progress.Update{
		Progress:     progress.Float(overall),
		FileStatus:   progress.FileStatusDone,
		FileProgress: progress.Float(100),
		Message:      note,
		Log:          fmt.Sprintf("%s: %s", f.name, note),
	})
}

// failed still claims the file's share so the job keeps moving.
func (f *fileTracking) failed(err error) {
	if f == nil {
		return
	}
	overall := f.claim(f.job.perFile)
	f.send(progress.Update{
		Progress:   progress.Float(overall),
		FileStatus: progress.FileStatusFailed,
		Message:    fmt.Sprintf("Preprocessing failed: %v", err),
		Log:        fmt.Sprintf("%s: preprocessing failed: %v", f.name, err),
	})
}
