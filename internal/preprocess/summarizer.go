package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/perfsight/internal/llm"
	"github.com/raphaelgruber/perfsight/internal/metrics"
)

// SummaryTemperature is used for chunk and meta summaries.
const SummaryTemperature = 0.2

// Summarizer turns chunks into summaries through the upstream LLM.
type Summarizer struct {
	caller    llm.Caller
	model     string
	chunkCfg  ChunkConfig
	chunkPool Scheduler
	logger    *slog.Logger
}

// SummarizerOptions configures a Summarizer.
type SummarizerOptions struct {
	// Model is the summary model name passed to the caller.
	Model string
	// Chunk limits; MaxChars also bounds the chunk text embedded in a prompt.
	Chunk ChunkConfig
	// ChunkWorkers bounds concurrent chunk calls per file.
	ChunkWorkers int
	// PoolFactory overrides pool creation (tests).
	PoolFactory PoolFactory
	Logger      *slog.Logger
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(caller llm.Caller, opts SummarizerOptions) *Summarizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.ChunkWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Summarizer{
		caller:   caller,
		model:    opts.Model,
		chunkCfg: opts.Chunk.withDefaults(),
		chunkPool: Scheduler{
			Name:    "chunk",
			Size:    workers,
			Factory: opts.PoolFactory,
			Logger:  logger,
		},
		logger: logger,
	}
}

// SummarizeChunk summarizes one chunk. The returned error wraps
// llm.ErrUpstream when the caller gave up.
func (s *Summarizer) SummarizeChunk(ctx context.Context, fileName, fileType, chunk string, index, total int) (string, error) {
	return s.summarizeChunk(ctx, fileName, fileType, chunk, index, total, nil)
}

func (s *Summarizer) summarizeChunk(ctx context.Context, fileName, fileType, chunk string, index, total int, track *fileTracking) (summary string, err error) {
	track.chunkStarted(index, total)
	defer func() { track.chunkFinished(index, total, err) }()

	prompt := chunkPrompt(fileName, fileType, truncateRunes(chunk, s.chunkCfg.MaxChars), index, total)
	resp, err := s.caller.Call(llm.WithOperation(ctx, metrics.OpChunkSummary), prompt, s.model, SummaryTemperature)
	if err != nil {
		return "", fmt.Errorf("summarize chunk %d/%d of %s: %w", index+1, total, fileName, err)
	}
	return strings.TrimSpace(resp), nil
}

// SummarizeFile summarizes every chunk concurrently and folds the ordered
// chunk summaries into one meta-summary. A failed chunk is replaced by a
// placeholder at its index; only a failed meta-summary fails the file.
func (s *Summarizer) SummarizeFile(ctx context.Context, fileName, fileType string, chunks []string) (string, []string, error) {
	return s.summarizeFile(ctx, fileName, fileType, chunks, nil)
}

func (s *Summarizer) summarizeFile(ctx context.Context, fileName, fileType string, chunks []string, track *fileTracking) (string, []string, error) {
	total := len(chunks)
	results := RunIndexed(ctx, s.chunkPool, total, func(ctx context.Context, i int) (string, error) {
		return s.summarizeChunk(ctx, fileName, fileType, chunks[i], i, total, track)
	})

	summaries := make([]string, total)
	for _, r := range results {
		if r.Err != nil {
			s.logger.Warn("chunk summary failed", "file", fileName, "chunk", r.Index, "error", r.Err)
			summaries[r.Index] = chunkFailedPlaceholder(r.Index, r.Err)
			continue
		}
		summaries[r.Index] = r.Value
	}

	track.metaStarted()
	resp, err := s.caller.Call(llm.WithOperation(ctx, metrics.OpMetaSummary), metaPrompt(fileName, fileType, summaries), s.model, SummaryTemperature)
	if err != nil {
		return "", summaries, fmt.Errorf("meta-summary for %s: %w", fileName, err)
	}
	return strings.TrimSpace(resp), summaries, nil
}

func chunkFailedPlaceholder(index int, err error) string {
	return fmt.Sprintf("[Chunk %d summary failed: %v]", index+1, err)
}
