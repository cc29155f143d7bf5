package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/perfsight/internal/config"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/raphaelgruber/perfsight/internal/pipeline"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/spf13/cobra"
)

var (
	analyzeContextFile string
	analyzeContext     []string
	analyzeOutput      string
	analyzeJSON        bool
	analyzeDryRun      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>...",
	Short: "Analyze performance-test artifacts locally",
	Long: `Analyze files, directories or zip archives in-process and print the report.

Directories are walked recursively; zip archives are extracted to a
temporary directory first. The LLM provider is taken from the environment
(LLM_PROVIDER, OPENAI_API_KEY, ...).

Examples:
  perfsight analyze results.csv app.log
  perfsight analyze run-42.zip --context test_type=load --context vus=200
  perfsight analyze ./artifacts --context-file context.yaml -o report.json
  perfsight analyze ./artifacts --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeContextFile, "context-file", "", "YAML or JSON file with test context")
	analyzeCmd.Flags().StringArrayVarP(&analyzeContext, "context", "c", nil, "test context entry as key=value (repeatable)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write the full result as JSON to this file")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "use a canned LLM instead of the configured provider")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	testContext, err := loadTestContext(analyzeContextFile, analyzeContext)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "perfsight-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	files, err := gatherInputs(args, workDir, cfg.MaxUploadBytes, logger)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no files found")
	}

	runCfg := cfg
	if analyzeDryRun {
		runCfg.LLMProvider = config.ProviderFake
	}

	tracker := progress.NewTracker(logger)
	jobID := tracker.CreateJob(preprocess.Specs(files))
	analyzer, err := pipeline.New(ctx, runCfg, pipeline.Deps{
		Reporter:  tracker,
		Collector: metrics.NewCollector(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	stopBar := func() {}
	if isTerminal(os.Stderr) {
		stopBar = showProgressBar(tracker, jobID, os.Stderr)
	}
	res, err := analyzer.Analyze(ctx, files, testContext, jobID)
	if err != nil {
		tracker.Fail(jobID, fmt.Sprintf("Analysis failed: %v", err))
		stopBar()
		return err
	}
	tracker.SetResult(jobID, res)
	stopBar()

	return emitResult(res, analyzeOutput, analyzeJSON)
}

// gatherInputs expands every path into analyzable files. Zip archives,
// given directly or found below a directory, are extracted into dir.
func gatherInputs(paths []string, dir string, maxMemberBytes int64, logger *slog.Logger) ([]preprocess.FileInput, error) {
	var files []preprocess.FileInput
	for _, p := range paths {
		collected, err := preprocess.CollectFiles(p)
		if err != nil {
			return nil, err
		}
		for _, f := range collected {
			if !preprocess.IsZip(f.Name) {
				files = append(files, f)
				continue
			}
			logger.Info("expanding zip", "file", f.Name)
			members, err := preprocess.ExpandZip(f.Path, f.Name, dir, maxMemberBytes)
			if err != nil {
				return nil, fmt.Errorf("expand %s: %w", f.Name, err)
			}
			files = append(files, members...)
		}
	}
	return files, nil
}
