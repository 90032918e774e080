package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"monkeypress/internal/logging"
)

// StatsReporter periodically logs an operational snapshot of the engine:
// cursor position, chunk count, audience size, and detected words.
type StatsReporter struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewStatsReporter schedules a recurring stats log for e and starts the
// scheduler. Call Shutdown to stop it.
func NewStatsReporter(e *Engine, interval time.Duration, logger *slog.Logger) (*StatsReporter, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	scopedLogger := logging.Default(logger).With("component", "stats")

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create stats scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			scopedLogger.Info("stream stats",
				"cursor", e.chunks.Cursor(),
				"chunks", e.chunks.ChunkCount(),
				"subscribers", e.Subscribers(),
				"users_online", e.UsersOnline(),
				"chars_per_minute", e.CharsPerMinute(),
				"words_detected", e.WordCount(),
				"healthy", e.Healthy(),
			)
		}),
		gocron.WithName("stream-stats"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stats job: %w", err)
	}

	scheduler.Start()
	return &StatsReporter{scheduler: scheduler, logger: scopedLogger}, nil
}

// Shutdown stops the scheduler and waits for a running job to finish.
func (r *StatsReporter) Shutdown() error {
	return r.scheduler.Shutdown()
}
