package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/perfsight/internal/client"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/report"
	"github.com/spf13/cobra"
)

var (
	submitServer      string
	submitContextFile string
	submitContext     []string
	submitDetach      bool
	submitOutput      string
	submitJSON        bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>...",
	Short: "Send artifacts to a perfsight server for analysis",
	Long: `Upload files to a running perfsight server and follow the job's progress.

Zip archives are uploaded as-is and extracted by the server. Press Ctrl+C
in the progress view to leave the job running in the background.

Examples:
  perfsight submit results.csv app.log
  perfsight submit run-42.zip --context test_type=soak -d
  perfsight submit run-42.zip --server http://perf-box:8484 -o report.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitServer, "server", "", "server URL (default $PERFSIGHT_SERVER_URL or http://localhost:8484)")
	submitCmd.Flags().StringVar(&submitContextFile, "context-file", "", "YAML or JSON file with test context")
	submitCmd.Flags().StringArrayVarP(&submitContext, "context", "c", nil, "test context entry as key=value (repeatable)")
	submitCmd.Flags().BoolVarP(&submitDetach, "detach", "d", false, "print the job ID and return without waiting")
	submitCmd.Flags().StringVarP(&submitOutput, "output", "o", "", "write the full result as JSON to this file")
	submitCmd.Flags().BoolVar(&submitJSON, "json", false, "print the full result as JSON")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	testContext, err := loadTestContext(submitContextFile, submitContext)
	if err != nil {
		return err
	}

	c := client.New(submitServer)
	start, err := c.Submit(ctx, args, testContext)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	if submitDetach {
		fmt.Printf("Job %s submitted.\nUse 'perfsight status %s' to check status.\n", start.JobID, start.JobID)
		return nil
	}

	job, err := followJob(ctx, c, &start.InitialProgress)
	if err != nil || job == nil {
		return err
	}
	res, err := client.ResultOf(job)
	if err != nil {
		return err
	}
	return emitResult(res, submitOutput, submitJSON)
}

// followJob waits for a job to finish, with the interactive view on a
// terminal and plain progress lines otherwise. A nil job means the user
// detached.
func followJob(ctx context.Context, c *client.Client, initial *progress.Job) (*progress.Job, error) {
	if isTerminal(os.Stdout) {
		return runJobProgress(c, initial)
	}

	var last string
	err := c.Watch(ctx, initial.ID, func(job progress.Job) error {
		line := fmt.Sprintf("[%s] %3.0f%% %s", job.Step, job.Progress, job.Message)
		if line != last {
			fmt.Fprintln(os.Stderr, line)
			last = line
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watch job: %w", err)
	}

	job, err := c.GetJob(ctx, initial.ID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Status == progress.JobStatusFailed {
		return job, fmt.Errorf("job failed: %s", job.Error)
	}
	return job, nil
}

// emitResult writes a finished result to a file, as JSON, or as a
// terminal summary.
func emitResult(res *report.Result, outputPath string, asJSON bool) error {
	if outputPath != "" {
		if err := writeJSON(os.Stdout, outputPath, res); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Result written to %s\n", outputPath)
	}
	if asJSON {
		return writeJSON(os.Stdout, "", res)
	}
	printResult(os.Stdout, res, wrapWidth(os.Stdout), defaultTheme)
	return nil
}
