// Package progress tracks asynchronous analysis jobs for polling clients.
package progress

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxLogEntries caps the per-job log; older entries are dropped first.
const MaxLogEntries = 200

// JobStatus represents the state of an analysis job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// FileStatus represents the state of one file inside a job.
type FileStatus string

const (
	FileStatusPending     FileStatus = "pending"
	FileStatusChunking    FileStatus = "chunking"
	FileStatusSummarizing FileStatus = "summarizing"
	FileStatusDone        FileStatus = "done"
	FileStatusFailed      FileStatus = "failed"
)

// FileSpec describes a file when a job is created.
type FileSpec struct {
	FileID    string
	Name      string
	FileType  string
	SizeBytes int64
	SourceZip string
}

// FileRecord is the progress state of one file.
type FileRecord struct {
	FileID     string     `json:"file_id"`
	Name       string     `json:"name"`
	FileType   string     `json:"file_type"`
	SizeBytes  int64      `json:"size_bytes"`
	Progress   float64    `json:"progress"`
	Status     FileStatus `json:"status"`
	ChunkIndex int        `json:"chunk_index"`
	ChunkTotal int        `json:"chunk_total"`
	Message    string     `json:"message"`
}

// Job is a snapshot of one analysis job as returned to polling clients.
type Job struct {
	ID        string       `json:"job_id"`
	Status    JobStatus    `json:"status"`
	Stage     string       `json:"stage"`
	Progress  float64      `json:"progress"`
	Step      string       `json:"step"`
	Message   string       `json:"message"`
	Logs      []string     `json:"logs"`
	Files     []FileRecord `json:"files"`
	Result    any          `json:"result"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Update is a partial change to a job. Zero-valued fields are ignored.
// File-scoped fields apply only when FileID or FileName is set.
type Update struct {
	Progress *float64
	Step     string
	Stage    string
	Message  string
	Log      string

	FileID       string
	FileName     string
	FileProgress *float64
	FileStatus   FileStatus
	ChunkIndex   *int
	ChunkTotal   *int
}

// Float returns a pointer to v, for Update fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for Update fields.
func Int(v int) *int { return &v }

// Tracker is an in-memory, mutex-guarded store of job progress.
// All reads and writes go through its methods; Get returns deep copies.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		jobs:   make(map[string]*Job),
		now:    time.Now,
		logger: logger,
	}
}

// CreateJob registers a running job with one pending record per file, in order.
func (t *Tracker) CreateJob(files []FileSpec) string {
	id := uuid.NewString()
	now := t.now()

	records := make([]FileRecord, len(files))
	for i, f := range files {
		fileType := f.FileType
		if fileType == "" {
			fileType = "unknown"
		}
		records[i] = FileRecord{
			FileID:    f.FileID,
			Name:      f.Name,
			FileType:  fileType,
			SizeBytes: f.SizeBytes,
			Status:    FileStatusPending,
		}
		if f.SourceZip != "" {
			records[i].Message = "Extracted from " + f.SourceZip
		}
	}

	job := &Job{
		ID:        id,
		Status:    JobStatusRunning,
		Stage:     "initializing",
		Step:      "queued",
		Message:   "Starting analysis",
		Logs:      []string{},
		Files:     records,
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.jobs[id] = job
	t.mu.Unlock()

	t.logger.Info("job created", "job_id", id, "files", len(files))
	return id
}

// Update merges u into the job. Progress values only move forward and are
// clamped to 100. Updating an unknown job is a no-op.
func (t *Tracker) Update(jobID string, u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	now := t.now()

	if u.Progress != nil {
		job.Progress = advance(job.Progress, *u.Progress)
	}
	if u.Step != "" {
		job.Step = u.Step
		job.Stage = u.Step
		if u.Stage != "" {
			job.Stage = u.Stage
		}
	} else if u.Stage != "" {
		job.Stage = u.Stage
	}
	if u.Message != "" {
		job.Message = u.Message
	}
	if u.Log != "" {
		job.Logs = appendLog(job.Logs, "["+now.Format("15:04:05")+"] "+u.Log)
	}

	if rec := findFile(job.Files, u.FileID, u.FileName); rec != nil {
		applyFileUpdate(rec, u)
	}

	job.UpdatedAt = now
}

// SetResult marks the job completed and stores its result.
func (t *Tracker) SetResult(jobID string, result any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	job.Status = JobStatusCompleted
	job.Progress = 100
	job.Step = "completed"
	job.Stage = "completed"
	job.Message = "Analysis complete"
	job.Result = result
	job.UpdatedAt = t.now()
}

// Fail marks the job failed. Progress is pushed to 100 so clients can treat
// "100% + failed" as terminal.
func (t *Tracker) Fail(jobID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	job.Status = JobStatusFailed
	job.Message = message
	job.Error = message
	job.Progress = max(job.Progress, 100)
	job.Step = "failed"
	job.Stage = "failed"
	job.UpdatedAt = t.now()
}

// Get returns an independent copy of the job, or false if it does not exist.
func (t *Tracker) Get(jobID string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// clone copies the job; Result is shared and must not be mutated after SetResult.
func (j *Job) clone() Job {
	out := *j
	out.Logs = append([]string(nil), j.Logs...)
	out.Files = append([]FileRecord(nil), j.Files...)
	return out
}

// IsTerminal reports whether the job reached completed or failed.
func (j Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

func advance(current, next float64) float64 {
	if math.IsNaN(next) {
		return current
	}
	return max(current, min(next, 100))
}

func appendLog(logs []string, entry string) []string {
	logs = append(logs, entry)
	if over := len(logs) - MaxLogEntries; over > 0 {
		logs = append(logs[:0:0], logs[over:]...)
	}
	return logs
}

// findFile matches by identifier first, then by display name.
func findFile(files []FileRecord, fileID, name string) *FileRecord {
	if fileID != "" {
		for i := range files {
			if files[i].FileID == fileID {
				return &files[i]
			}
		}
	}
	if name != "" {
		for i := range files {
			if files[i].Name == name {
				return &files[i]
			}
		}
	}
	return nil
}

func applyFileUpdate(rec *FileRecord, u Update) {
	if u.FileProgress != nil {
		rec.Progress = advance(rec.Progress, *u.FileProgress)
	}
	// done and failed are terminal for a file
	if u.FileStatus != "" && rec.Status != FileStatusDone && rec.Status != FileStatusFailed {
		rec.Status = u.FileStatus
	}
	if rec.Status == FileStatusDone {
		rec.Progress = 100
	}
	if u.ChunkIndex != nil {
		rec.ChunkIndex = *u.ChunkIndex
	}
	if u.ChunkTotal != nil {
		rec.ChunkTotal = *u.ChunkTotal
	}
	if u.Message != "" {
		rec.Message = u.Message
	}
}
