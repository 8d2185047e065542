package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-pos/meridian-pos/internal/jobs"
	"github.com/meridian-pos/meridian-pos/internal/reports"
)

// SummaryBuilder computes the accounting summary. Satisfied by the
// reports service, which caches the result as a side effect.
type SummaryBuilder interface {
	AccountingSummary(ctx context.Context, filter reports.SummaryFilter) (reports.Summary, error)
}

// SummaryWarmupJob precomputes the current-day accounting summary so
// the first dashboard hit of the hour is served from cache.
type SummaryWarmupJob struct {
	Reports SummaryBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSummaryWarmupJob initialises the warmup handler.
func NewSummaryWarmupJob(reportsService SummaryBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryWarmupJob {
	return &SummaryWarmupJob{
		Reports: reportsService,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the warmup.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("summary warmup: handler not configured")
	}

	tracker := j.metrics().Track(TaskSummaryWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	from, to := reports.DayWindow(j.now())
	summary, err := j.Reports.AccountingSummary(ctx, reports.SummaryFilter{From: from, To: to})
	if err != nil {
		resultErr = err
		j.logger().Error("summary warmup failed", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("summary warmed",
		slog.String("from", from.Format("2006-01-02")),
		slog.String("revenue", summary.Revenue.String()),
	)
	return nil
}

func (j *SummaryWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SummaryWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SummaryWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
