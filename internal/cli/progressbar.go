package cli

import (
	"io"
	"sync"
	"time"

	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/schollz/progressbar/v3"
)

const barRefresh = 200 * time.Millisecond

// jobSource is the read side of a progress tracker.
type jobSource interface {
	Get(jobID string) (progress.Job, bool)
}

// showProgressBar renders a local job's progress on w until the returned
// stop function is called.
func showProgressBar(src jobSource, jobID string, w io.Writer) (stop func()) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionFullWidth(),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(barRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				syncBar(bar, src, jobID)
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		syncBar(bar, src, jobID)
		_ = bar.Finish()
	}
}

func syncBar(bar *progressbar.ProgressBar, src jobSource, jobID string) {
	job, ok := src.Get(jobID)
	if !ok {
		return
	}
	bar.Describe(job.Step)
	_ = bar.Set(int(job.Progress))
}
