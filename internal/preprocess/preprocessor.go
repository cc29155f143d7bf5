// Package preprocess chunks performance-test artifacts and summarizes them
// through an LLM, file by file and chunk by chunk, with progress reporting.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Placeholder summaries for files that produced no LLM summary.
const (
	SummaryUnreadable = "Unable to read file content."
	SummaryEmpty      = "Empty file."
)

// FileSummary is the preprocessing output for one input file.
type FileSummary struct {
	Name           string   `json:"name"`
	FileType       string   `json:"file_type"`
	Summary        string   `json:"summary"`
	Chunks         int      `json:"chunks"`
	ChunkSummaries []string `json:"chunk_summaries"`
	TotalLines     int      `json:"total_lines"`
}

// Preprocessor runs the Summarizer across all files of a request.
type Preprocessor struct {
	summarizer *Summarizer
	chunkCfg   ChunkConfig
	filePool   Scheduler
	reporter   Reporter
	logger     *slog.Logger
}

// Options configures a Preprocessor.
type Options struct {
	Chunk       ChunkConfig
	FileWorkers int
	// PoolFactory overrides pool creation (tests).
	PoolFactory PoolFactory
	// Reporter receives progress when Preprocess is called with a job ID.
	Reporter Reporter
	Logger   *slog.Logger
}

// New creates a Preprocessor.
func New(summarizer *Summarizer, opts Options) *Preprocessor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.FileWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Preprocessor{
		summarizer: summarizer,
		chunkCfg:   opts.Chunk.withDefaults(),
		filePool: Scheduler{
			Name:    "file",
			Size:    workers,
			Factory: opts.PoolFactory,
			Logger:  logger,
		},
		reporter: opts.Reporter,
		logger:   logger,
	}
}

// Preprocess returns one FileSummary per input file, in input order. A file
// that fails is represented by a placeholder summary; it never aborts the
// others. When jobID is empty no progress is reported.
func (p *Preprocessor) Preprocess(ctx context.Context, files []FileInput, jobID string) []FileSummary {
	start := time.Now()
	job := newJobTracking(p.reporter, jobID, len(files))
	p.logger.Info("preprocessing files", "job_id", jobID, "files", len(files))

	results := RunIndexed(ctx, p.filePool, len(files), func(ctx context.Context, i int) (FileSummary, error) {
		return p.processFile(ctx, files[i], job.forFile(files[i]))
	})

	summaries := make([]FileSummary, len(files))
	for _, r := range results {
		if r.Err != nil {
			f := files[r.Index]
			p.logger.Warn("file preprocessing failed", "file", f.DisplayName(), "error", r.Err)
			summaries[r.Index] = FileSummary{
				Name:           f.DisplayName(),
				FileType:       f.Type(),
				Summary:        fmt.Sprintf("[Preprocessing failed: %v]", r.Err),
				ChunkSummaries: []string{},
			}
			continue
		}
		summaries[r.Index] = r.Value
	}

	p.logger.Info("preprocessing complete", "job_id", jobID, "files", len(files), "duration_ms", time.Since(start).Milliseconds())
	return summaries
}

func (p *Preprocessor) processFile(ctx context.Context, f FileInput, track *fileTracking) (summary FileSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			track.failed(err)
		}
	}()

	name := f.DisplayName()
	fileType := f.Type()
	summary = FileSummary{Name: name, FileType: fileType, ChunkSummaries: []string{}}

	track.chunking()
	content, totalLines, readErr := ReadFile(f.Path)
	if readErr != nil {
		p.logger.Warn("failed to read file", "file", name, "path", f.Path, "error", readErr)
		summary.Summary = SummaryUnreadable
		track.done(SummaryUnreadable)
		return summary, nil
	}
	summary.TotalLines = totalLines

	chunks := Chunk(content, p.chunkCfg)
	if len(chunks) == 0 {
		summary.Summary = SummaryEmpty
		track.done(SummaryEmpty)
		return summary, nil
	}
	track.chunked(len(chunks), totalLines)

	p.logger.Info("preprocessing file", "file", name, "type", fileType, "chunks", len(chunks), "lines", totalLines)
	meta, chunkSummaries, err := p.summarizer.summarizeFile(ctx, name, fileType, chunks, track)
	if err != nil {
		return FileSummary{}, err
	}

	summary.Summary = meta
	summary.Chunks = len(chunks)
	summary.ChunkSummaries = chunkSummaries
	track.done(fmt.Sprintf("Summarized %d chunks", len(chunks)))
	return summary, nil
}
