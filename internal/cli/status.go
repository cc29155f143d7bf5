package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/raphaelgruber/perfsight/internal/client"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/spf13/cobra"
)

const recentLogs = 5

var (
	statusServer string
	statusWatch  bool
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Inspect an analysis job on a perfsight server",
	Long: `Show the progress of a job submitted with 'perfsight submit'.

Examples:
  perfsight status 7c0e...       # Show details for the job
  perfsight status 7c0e... -w    # Follow the job until it finishes
  perfsight status 7c0e... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "", "server URL (default $PERFSIGHT_SERVER_URL or http://localhost:8484)")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "follow the job until it finishes")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw job as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := client.New(statusServer)

	job, err := c.GetJob(ctx, args[0])
	if errors.Is(err, client.ErrJobNotFound) {
		return fmt.Errorf("job not found: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	if statusWatch && !job.IsTerminal() {
		job, err = followJob(ctx, c, job)
		if err != nil || job == nil {
			return err
		}
	}

	if statusJSON {
		return writeJSON(os.Stdout, "", job)
	}
	showJob(os.Stdout, job)

	if job.Status == progress.JobStatusCompleted {
		res, err := client.ResultOf(job)
		if err != nil {
			return err
		}
		fmt.Println()
		printResult(os.Stdout, res, wrapWidth(os.Stdout), defaultTheme)
	}
	return nil
}

func showJob(w io.Writer, job *progress.Job) {
	fmt.Fprintf(w, "Job: %s\n", job.ID)
	fmt.Fprintf(w, "  Status: %s\n", job.Status)
	fmt.Fprintf(w, "  Step: %s\n", job.Step)
	fmt.Fprintf(w, "  Progress: %.0f%%\n", job.Progress)
	if job.Message != "" {
		fmt.Fprintf(w, "  Message: %s\n", job.Message)
	}
	fmt.Fprintf(w, "  Started: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.IsTerminal() {
		fmt.Fprintf(w, "  Finished: %s\n", job.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  Duration: %s\n", job.UpdatedAt.Sub(job.CreatedAt).Round(time.Second))
	}
	if job.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", job.Error)
	}

	if len(job.Files) > 0 {
		fmt.Fprintf(w, "\nFiles (%d):\n", len(job.Files))
		for _, f := range job.Files {
			fmt.Fprintf(w, "  %s\n", fileLine(f))
		}
	}

	if len(job.Logs) > 0 {
		logs := job.Logs[max(0, len(job.Logs)-recentLogs):]
		fmt.Fprintln(w, "\nRecent log:")
		for _, l := range logs {
			fmt.Fprintf(w, "  - %s\n", l)
		}
	}
}
