package reporter

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"toolbox/internal/display"
	"toolbox/internal/logger"
	"toolbox/internal/metrics"
)

// Snapshotter is anything that can report enterprise metrics.
type Snapshotter interface {
	Snapshot() *metrics.EnterpriseMetrics
}

// Reporter prints a status line for an enterprise at a fixed interval.
type Reporter struct {
	scheduler *gocron.Scheduler
}

func New(src Snapshotter, interval time.Duration, print func(string)) (*Reporter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("status interval must be positive, got %s", interval)
	}

	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).Do(func() {
		line := display.FormatStatusLine(src.Snapshot())
		logger.Log.Info(line)
		if print != nil {
			print(line)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule status report: %w", err)
	}
	return &Reporter{scheduler: s}, nil
}

func (r *Reporter) Start() { r.scheduler.StartAsync() }

// Stop waits for a running report to finish.
func (r *Reporter) Stop() { r.scheduler.Stop() }
