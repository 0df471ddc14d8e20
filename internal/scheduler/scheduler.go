package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/clock"
	obsmetrics "github.com/smallbiznis/millroll/internal/observability/metrics"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobPostingSweep = "posting_sweep"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Posting postingdomain.Service
	Config  Config `optional:"true"`
}

// Scheduler runs periodic maintenance. Today that is moving ERP postings
// stuck in pending to unknown so operators can reconcile them.
type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	posting postingdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Posting == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		posting: p.Posting,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := s.newJobRun(name, batchSize)
	ctx = s.withLogContext(ctx, run)
	s.logJobStart(ctx, run)

	postingMetrics := obsmetrics.Posting()
	postingMetrics.IncSweeperRun()

	err := fn(ctx, run)
	if err != nil && run.errors == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	postingMetrics.IncSweeperError()
	// Deadline is a soft timeout; the next tick picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobPostingSweep, s.cfg.BatchSize, s.cfg.JobTimeout, s.SweepPendingPostingsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepPendingPostingsJob drains stale pending postings batch by batch.
func (s *Scheduler) SweepPendingPostingsJob(ctx context.Context, run *jobRun) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		swept, err := s.posting.SweepPending(ctx, s.cfg.PendingAfter, s.cfg.BatchSize)
		run.AddProcessed(len(swept))
		s.logMarkedUnknown(ctx, len(swept))
		if err != nil {
			return err
		}
		if len(swept) < s.cfg.BatchSize {
			return nil
		}
	}
}
