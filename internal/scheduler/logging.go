package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/millroll/internal/observability/context"
	obslogger "github.com/smallbiznis/millroll/internal/observability/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const systemOperator = "system:scheduler"

// jobRun tracks one execution of a maintenance job. The run id doubles as the
// request id so every log line of a sweep can be correlated.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	processed int
	errors    int
}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processed += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errors++
	}
}

func (s *Scheduler) newJobRun(job string, batchSize int) *jobRun {
	return &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
}

func (s *Scheduler) withLogContext(ctx context.Context, run *jobRun) context.Context {
	ctx = obscontext.WithUserID(ctx, systemOperator)
	return obscontext.WithRequestID(ctx, run.runID)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.Int("batch_size", run.batchSize),
	)
}

// An idle sweep logs at debug. Marking postings unknown is operator-relevant
// and logs at info, and failures warn.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	level := zapcore.DebugLevel
	switch {
	case run.errors > 0:
		level = zapcore.WarnLevel
	case run.processed > 0:
		level = zapcore.InfoLevel
	}
	if ce := s.logger(ctx).Check(level, "scheduler.job.finish"); ce != nil {
		ce.Write(
			zap.String("job", run.job),
			zap.Duration("elapsed", s.clock.Now().Sub(run.startedAt)),
			zap.Int("processed_count", run.processed),
			zap.Int("error_count", run.errors),
		)
	}
}

func (s *Scheduler) logMarkedUnknown(ctx context.Context, swept int) {
	if swept == 0 {
		return
	}
	s.logger(ctx).Warn("erp postings marked unknown, reconcile with ERP",
		zap.Int("count", swept),
		zap.Duration("pending_after", s.cfg.PendingAfter),
	)
}
