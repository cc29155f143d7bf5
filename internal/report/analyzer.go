// Package report turns preprocessed file summaries into the final
// performance analysis report.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/perfsight/internal/llm"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
	"github.com/raphaelgruber/perfsight/internal/progress"
)

// AnalysisTemperature is used for the final report call.
const AnalysisTemperature = 0.35

// Progress checkpoints owned by the report stage. Preprocessing fills the
// range between ProgressPreprocessing and ProgressBuildingPrompt.
const (
	ProgressPreprocessing  = preprocess.EnumerationShare
	ProgressBuildingPrompt = preprocess.EnumerationShare + preprocess.PreprocessShare
	ProgressAnalyzing      = 75.0
	ProgressParsing        = 95.0
)

// Preprocessor produces ordered file summaries. *preprocess.Preprocessor implements it.
type Preprocessor interface {
	Preprocess(ctx context.Context, files []preprocess.FileInput, jobID string) []preprocess.FileSummary
}

// FileDigest is the per-file preprocessing metadata carried in a Result.
type FileDigest struct {
	Name       string `json:"name"`
	FileType   string `json:"file_type"`
	Chunks     int    `json:"chunks"`
	TotalLines int    `json:"total_lines"`
}

// PreprocessingDigest lists the preprocessed files in input order.
type PreprocessingDigest struct {
	Files []FileDigest `json:"files"`
}

// Result is the analysis payload returned to clients.
type Result struct {
	Summary          string              `json:"summary"`
	Insights         string              `json:"insights"`
	Recommendations  string              `json:"recommendations"`
	Response         string              `json:"response"`
	MarkdownReport   string              `json:"markdown_report"`
	AIMarkdownReport string              `json:"ai_markdown_report"`
	ModelUsed        string              `json:"model_used"`
	AnalyzedAt       string              `json:"analyzed_at"`
	Preprocessing    PreprocessingDigest `json:"preprocessing"`
}

// Analyzer runs preprocessing, the final analysis call and response parsing.
type Analyzer struct {
	pre      Preprocessor
	caller   llm.Caller
	model    string
	reporter preprocess.Reporter
	logger   *slog.Logger
	now      func() time.Time
}

// Options configures an Analyzer.
type Options struct {
	// Model is the analysis model name.
	Model    string
	Reporter preprocess.Reporter
	Logger   *slog.Logger
}

// New creates an Analyzer.
func New(pre Preprocessor, caller llm.Caller, opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		pre:      pre,
		caller:   caller,
		model:    opts.Model,
		reporter: opts.Reporter,
		logger:   logger,
		now:      time.Now,
	}
}

// Analyze preprocesses files and asks the analysis model for a Markdown
// report. Progress is reported when jobID is non-empty; completing or
// failing the job is left to the caller.
func (a *Analyzer) Analyze(ctx context.Context, files []preprocess.FileInput, testContext TestContext, jobID string) (*Result, error) {
	a.logger.Info("starting analysis", "job_id", jobID, "files", len(files), "context_keys", testContext.Keys())

	a.report(jobID, progress.Update{
		Progress: progress.Float(ProgressPreprocessing),
		Step:     "preprocessing",
		Message:  fmt.Sprintf("Preprocessing %d files", len(files)),
		Log:      fmt.Sprintf("Preprocessing %d files", len(files)),
	})
	summaries := a.pre.Preprocess(ctx, files, jobID)

	a.report(jobID, progress.Update{
		Progress: progress.Float(ProgressBuildingPrompt),
		Step:     "building_prompt",
		Message:  "Building analysis prompt",
	})
	prompt := BuildPrompt(summaries, testContext)

	a.report(jobID, progress.Update{
		Progress: progress.Float(ProgressAnalyzing),
		Step:     "analyzing",
		Message:  fmt.Sprintf("Running analysis with %s", a.model),
		Log:      fmt.Sprintf("Sending %d file summaries to %s", len(summaries), a.model),
	})
	resp, err := a.caller.Call(llm.WithOperation(ctx, metrics.OpAnalysis), prompt, a.model, AnalysisTemperature)
	if err != nil {
		return nil, fmt.Errorf("analysis call: %w", err)
	}
	a.logger.Info("analysis complete", "job_id", jobID, "model", a.model, "response_chars", len(resp))

	a.report(jobID, progress.Update{
		Progress: progress.Float(ProgressParsing),
		Step:     "parsing",
		Message:  "Parsing analysis response",
	})
	return a.buildResult(resp, summaries), nil
}

func (a *Analyzer) buildResult(resp string, summaries []preprocess.FileSummary) *Result {
	resp = strings.TrimSpace(resp)
	summary := ExtractSection(resp, SectionExecutiveSummary)
	if summary == "" {
		summary = resp
	}

	digest := PreprocessingDigest{Files: make([]FileDigest, len(summaries))}
	for i, s := range summaries {
		digest.Files[i] = FileDigest{
			Name:       s.Name,
			FileType:   s.FileType,
			Chunks:     s.Chunks,
			TotalLines: s.TotalLines,
		}
	}

	return &Result{
		Summary:          summary,
		Insights:         ExtractSection(resp, SectionKeyFindings),
		Recommendations:  ExtractSection(resp, SectionRecommendations),
		Response:         resp,
		MarkdownReport:   resp,
		AIMarkdownReport: resp,
		ModelUsed:        a.model,
		AnalyzedAt:       a.now().UTC().Format(time.RFC3339),
		Preprocessing:    digest,
	}
}

func (a *Analyzer) report(jobID string, u progress.Update) {
	if a.reporter == nil || jobID == "" {
		return
	}
	a.reporter.Update(jobID, u)
}
