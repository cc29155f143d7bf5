// Package pipeline assembles the analysis stack from configuration.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/perfsight/internal/config"
	"github.com/raphaelgruber/perfsight/internal/llm"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
	"github.com/raphaelgruber/perfsight/internal/report"
)

// Deps are the shared collaborators of a pipeline.
type Deps struct {
	// Reporter receives job progress; nil disables reporting.
	Reporter  preprocess.Reporter
	Collector *metrics.Collector
	Logger    *slog.Logger
	// Caller overrides the configured provider (tests, dry runs).
	Caller llm.Caller
}

// New builds an Analyzer wired to the configured LLM provider.
func New(ctx context.Context, cfg config.Config, deps Deps) (*report.Analyzer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	caller := deps.Caller
	if caller == nil && cfg.LLMProvider == config.ProviderFake {
		logger.Warn("using fake LLM provider, reports will not be meaningful")
		caller = llm.NewFake()
	}
	if caller == nil {
		var err error
		caller, err = llm.NewCaller(ctx, cfg, deps.Collector, logger)
		if err != nil {
			return nil, err
		}
	}

	chunkCfg := preprocess.ChunkConfig{
		MaxLines: cfg.MaxLinesPerChunk,
		MaxChars: cfg.MaxCharsPerChunk,
	}
	summarizer := preprocess.NewSummarizer(caller, preprocess.SummarizerOptions{
		Model:        cfg.SummaryModel,
		Chunk:        chunkCfg,
		ChunkWorkers: cfg.MaxChunkWorkers,
		Logger:       logger,
	})
	pre := preprocess.New(summarizer, preprocess.Options{
		Chunk:       chunkCfg,
		FileWorkers: cfg.MaxFileWorkers,
		Reporter:    deps.Reporter,
		Logger:      logger,
	})

	logger.Info("analysis pipeline ready",
		"provider", cfg.LLMProvider,
		"analysis_model", cfg.AnalysisModel,
		"summary_model", cfg.SummaryModel,
		"file_workers", cfg.MaxFileWorkers,
		"chunk_workers", cfg.MaxChunkWorkers,
	)
	return report.New(pre, caller, report.Options{
		Model:    cfg.AnalysisModel,
		Reporter: deps.Reporter,
		Logger:   logger,
	}), nil
}
