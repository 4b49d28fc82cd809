package alerts

import (
	"context"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/metrics"
)

// Job is a named unit of scheduled work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler fires jobs on cron schedules and runs them one at a time on a
// single worker. A trigger that arrives while a job is running is dropped.
type Scheduler struct {
	cron  *cron.Cron
	queue chan Job
}

// NewScheduler creates a scheduler evaluating schedules in loc.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:  cron.NewWithLocation(loc),
		queue: make(chan Job),
	}
}

// Add registers job on a six-field cron spec (seconds first).
func (s *Scheduler) Add(spec string, job Job) error {
	if err := s.cron.AddFunc(spec, func() { s.trigger(job) }); err != nil {
		return eris.Wrapf(err, "alerts: schedule %s %q", job.Name, spec)
	}
	return nil
}

// trigger hands job to the worker if it is idle.
func (s *Scheduler) trigger(job Job) bool {
	select {
	case s.queue <- job:
		return true
	default:
		zap.L().Warn("alerts: job still running, trigger dropped", zap.String("job", job.Name))
		metrics.JobRuns.WithLabelValues(job.Name, "skipped").Inc()
		return false
	}
}

// Run starts the schedules and the worker. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "alerts.scheduler"))
	log.Info("starting scheduler", zap.Int("jobs", len(s.cron.Entries())))

	s.cron.Start()
	defer s.cron.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case job := <-s.queue:
			s.runJob(ctx, log, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, log *zap.Logger, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("alerts: job panicked", zap.String("job", job.Name), zap.Any("panic", r))
			metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		}
	}()

	if err := job.Run(ctx); err != nil {
		log.Error("alerts: job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		return
	}
	log.Debug("alerts: job complete", zap.String("job", job.Name), zap.Duration("elapsed", time.Since(start)))
	metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
}

// CheckJob wraps Evaluator.CheckAlerts.
func CheckJob(e *Evaluator) Job {
	return Job{Name: "check_alerts", Run: func(ctx context.Context) error {
		_, err := e.CheckAlerts(ctx)
		return err
	}}
}

// SummaryJob wraps Evaluator.SendDailySummaries.
func SummaryJob(e *Evaluator) Job {
	return Job{Name: "daily_summary", Run: func(ctx context.Context) error {
		_, err := e.SendDailySummaries(ctx)
		return err
	}}
}
