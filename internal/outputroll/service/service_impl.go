package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/config"
	"github.com/smallbiznis/millroll/internal/erp"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	obslogger "github.com/smallbiznis/millroll/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/millroll/internal/observability/metrics"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/smallbiznis/millroll/internal/provenance"
	"github.com/smallbiznis/millroll/internal/sequence"
	"github.com/smallbiznis/millroll/pkg/db"
	"github.com/smallbiznis/millroll/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Plant      *config.PlantConfigHolder
	Repo       outputrolldomain.Repository
	JobRepo    jobdomain.Repository
	InputRolls inputrolldomain.Service
	Machines   machinedomain.Service
	Resolver   *provenance.Resolver
	Allocator  *sequence.Allocator
	Locker     sequence.Locker
	Posting    postingdomain.Service
	ERP        erp.Client
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	plant      *config.PlantConfigHolder
	repo       outputrolldomain.Repository
	jobRepo    jobdomain.Repository
	inputRolls inputrolldomain.Service
	machines   machinedomain.Service
	resolver   *provenance.Resolver
	allocator  *sequence.Allocator
	locker     sequence.Locker
	posting    postingdomain.Service
	erp        erp.Client
	metrics    *obsmetrics.Metrics
}

func New(p Params) outputrolldomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("outputroll.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		plant:      p.Plant,
		repo:       p.Repo,
		jobRepo:    p.JobRepo,
		inputRolls: p.InputRolls,
		machines:   p.Machines,
		resolver:   p.Resolver,
		allocator:  p.Allocator,
		locker:     p.Locker,
		posting:    p.Posting,
		erp:        p.ERP,
		metrics:    p.Metrics,
	}
}

// Create allocates the next batch code for the job and records the roll
// with its provenance. Allocation, provenance and insert share one
// transaction. Numbers whose code another job already holds are skipped,
// and a lost sequence race retries the whole transaction.
func (s *Service) Create(ctx context.Context, req outputrolldomain.CreateRequest) (*outputrolldomain.Detail, error) {
	jobID, err := snowflake.ParseString(strings.TrimSpace(req.JobID))
	if err != nil || jobID == 0 {
		return nil, outputrolldomain.ErrInvalidJob
	}
	inputRollID, err := snowflake.ParseString(strings.TrimSpace(req.InputRollID))
	if err != nil || inputRollID == 0 {
		return nil, outputrolldomain.ErrInvalidInputRoll
	}
	if req.NominalMeter.IsNegative() {
		return nil, outputrolldomain.ErrInvalidMeter
	}
	if req.CoreWeight.IsNegative() {
		return nil, outputrolldomain.ErrInvalidCoreWeight
	}
	if req.FlagCount < 0 {
		return nil, outputrolldomain.ErrInvalidFlagCount
	}

	job, err := s.jobRepo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return nil, db.Wrap("job.get", err)
	}
	if job == nil {
		return nil, jobdomain.ErrNotFound
	}
	if !job.Active() {
		return nil, jobdomain.ErrJobEnded
	}
	input, err := s.inputRolls.Get(ctx, inputRollID)
	if err != nil {
		return nil, err
	}
	if input.JobID != job.ID {
		return nil, outputrolldomain.ErrInputRollMismatch
	}
	label, err := s.machines.Label(ctx, job.MachineID)
	if err != nil {
		return nil, err
	}

	plant := s.plant.Get()
	log := obslogger.WithJob(obslogger.WithContext(ctx, s.log), int64(job.ID))

	unlock, err := s.locker.Lock(ctx, "job:"+job.ID.String())
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}
	defer unlock()

	attempts := plant.SequenceRetries
	if attempts < 1 {
		attempts = 1
	}

	var (
		roll    *outputrolldomain.OutputRoll
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		roll, lastErr = s.createOnce(ctx, job, input, label, plant.ShiftsPerDay, req)
		if lastErr == nil {
			break
		}
		if !retryable(lastErr) {
			return nil, lastErr
		}
		s.metrics.RecordSequenceConflict(ctx)
		log.Warn("roll number allocation conflict",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr),
		)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", outputrolldomain.ErrAllocationExhausted, lastErr)
	}

	s.metrics.RecordOutputRoll(ctx, label)
	log.Info("output roll created",
		zap.String("output_batch", roll.OutputBatch),
		zap.String("from_input_batch", roll.FromInputBatch),
	)
	return s.Get(ctx, roll.ID)
}

func (s *Service) createOnce(
	ctx context.Context,
	job *jobdomain.Job,
	input *inputrolldomain.InputRoll,
	label string,
	shiftsPerDay int,
	req outputrolldomain.CreateRequest,
) (*outputrolldomain.OutputRoll, error) {
	now := s.clock.Now()
	day := clock.Day(now)
	shiftNumber, err := sequence.ShiftNumber(now, shiftsPerDay, job.ShiftID)
	if err != nil {
		return nil, err
	}

	var roll *outputrolldomain.OutputRoll
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rollNumber, err := s.allocator.Next(ctx, tx, job.ID, day, now.UTC(), func(ctx context.Context, tx *gorm.DB) (int64, error) {
			count, err := s.repo.CountForDay(ctx, tx, job.ID, day)
			if err != nil {
				return 0, db.Wrap("output_roll.count_for_day", err)
			}
			return count, nil
		})
		if err != nil {
			return err
		}

		batch, chosen, err := s.freeBatchCode(ctx, tx, now, shiftNumber, label, rollNumber)
		if err != nil {
			return err
		}
		if chosen != rollNumber {
			if err := s.allocator.Advance(ctx, tx, job.ID, day, rollNumber, chosen, now.UTC()); err != nil {
				return err
			}
		}

		resolved, err := s.resolver.Resolve(ctx, tx, job.ID, *input, now.UTC())
		if err != nil {
			return err
		}

		roll = &outputrolldomain.OutputRoll{
			ID:             s.genID.Generate(),
			JobID:          job.ID,
			InputRollID:    input.ID,
			OutputBatch:    batch,
			FromInputBatch: resolved.FromInputBatch,
			FinalMeter:     req.NominalMeter,
			CoreWeight:     req.CoreWeight,
			FlagCount:      req.FlagCount,
			ProductionDay:  day,
			CreatedBy:      strings.TrimSpace(req.CreatedBy),
			CreatedAt:      now.UTC(),
			UpdatedAt:      now.UTC(),
		}
		if reason := strings.TrimSpace(req.FlagReason); reason != "" {
			roll.FlagReason = &reason
		}
		if err := s.repo.Insert(ctx, tx, roll); err != nil {
			return db.Wrap("output_roll.insert", err)
		}

		links := make([]outputrolldomain.OutputRollInput, 0, len(resolved.InputRollIDs))
		for i, id := range resolved.InputRollIDs {
			links = append(links, outputrolldomain.OutputRollInput{
				OutputRollID: roll.ID,
				InputRollID:  id,
				Position:     i + 1,
			})
		}
		if err := s.repo.InsertInputs(ctx, tx, links); err != nil {
			return db.Wrap("output_roll.insert_inputs", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roll, nil
}

// freeBatchCode walks up from rollNumber until the batch code is not yet
// used. Another job on the same machine and shift may already hold the
// number this job's sequence issued.
func (s *Service) freeBatchCode(ctx context.Context, tx *gorm.DB, now time.Time, shiftNumber int, label string, rollNumber int64) (string, int64, error) {
	for n := rollNumber; ; n++ {
		batch, err := sequence.BatchCode(now, shiftNumber, label, n)
		if err != nil {
			return "", 0, err
		}
		taken, err := s.repo.BatchExists(ctx, tx, batch)
		if err != nil {
			return "", 0, db.Wrap("output_roll.batch_exists", err)
		}
		if !taken {
			return batch, n, nil
		}
	}
}

func retryable(err error) bool {
	if provenance.IsResolutionError(err) {
		return false
	}
	return errors.Is(err, sequence.ErrConflict) ||
		db.IsKind(err, db.KindConflict) ||
		db.IsKind(err, db.KindTransaction)
}

// ApplyFinalWeight reconciles a weighed roll and reports it to the ERP.
// Nothing is persisted unless the ERP accepts the roll.
func (s *Service) ApplyFinalWeight(ctx context.Context, req outputrolldomain.FinalWeightRequest) (*outputrolldomain.Detail, error) {
	if req.RawWeight.IsNegative() {
		return nil, outputrolldomain.ErrInvalidWeight
	}

	unlock, err := s.locker.Lock(ctx, "output_roll:"+req.OutputRollID.String())
	if err != nil {
		return nil, fmt.Errorf("lock output roll: %w", err)
	}
	defer unlock()

	roll, err := s.find(ctx, req.OutputRollID)
	if err != nil {
		return nil, err
	}
	if roll.Reconciled() {
		return nil, outputrolldomain.ErrAlreadyReconciled
	}
	job, err := s.jobRepo.FindByID(ctx, s.db, roll.JobID)
	if err != nil {
		return nil, db.Wrap("job.get", err)
	}
	if job == nil {
		return nil, jobdomain.ErrNotFound
	}

	rec := outputrolldomain.Reconcile(roll.FinalMeter, req.RawWeight, roll.CoreWeight)
	receipt := erp.RollReceipt{
		Batch:           roll.OutputBatch,
		CorrectedMeter:  rec.CorrectedMeter,
		NetWeight:       rec.NetWeight,
		ProductionOrder: job.ProductionOrder,
	}
	updatedBy := strings.TrimSpace(req.UpdatedBy)

	log := obslogger.WithJob(obslogger.WithContext(ctx, s.log), int64(job.ID)).With(
		zap.String("output_batch", roll.OutputBatch),
	)

	_, err = s.posting.Execute(ctx,
		postingdomain.BeginRequest{
			Kind:          postingdomain.KindRollReceipt,
			ReferenceType: outputrolldomain.ReferenceType,
			ReferenceID:   roll.ID,
			Request:       receipt,
		},
		func(ctx context.Context, key string) (string, error) {
			receipt.IdempotencyKey = key
			if err := s.erp.PostRoll(ctx, receipt); err != nil {
				return "", err
			}
			return roll.OutputBatch, nil
		},
		func(tx *gorm.DB, _ string) error {
			rows, err := s.repo.ApplyReconciliation(ctx, tx, roll.ID, rec.CorrectedMeter, rec.NetWeight, updatedBy, s.clock.Now().UTC())
			if err != nil {
				return db.Wrap("output_roll.reconcile", err)
			}
			if rows == 0 {
				return outputrolldomain.ErrAlreadyReconciled
			}
			return nil
		},
	)
	if err != nil {
		s.metrics.RecordReconciliation(ctx, "failed", 0)
		log.Warn("output roll reconciliation failed", zap.Error(err))
		return nil, err
	}

	s.metrics.RecordReconciliation(ctx, "succeeded", rec.NetWeight.InexactFloat64())
	log.Info("output roll reconciled",
		zap.String("net_weight", rec.NetWeight.String()),
		zap.String("ratio", rec.Ratio.String()),
		zap.String("corrected_meter", rec.CorrectedMeter.String()),
	)
	return s.Get(ctx, roll.ID)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*outputrolldomain.Detail, error) {
	roll, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	lineage, err := s.Lineage(ctx, id)
	if err != nil {
		return nil, err
	}
	return &outputrolldomain.Detail{OutputRoll: *roll, Lineage: lineage}, nil
}

func (s *Service) Lineage(ctx context.Context, id snowflake.ID) ([]outputrolldomain.LineageEntry, error) {
	items, err := s.repo.ListLineage(ctx, s.db, id)
	if err != nil {
		return nil, db.Wrap("output_roll.lineage", err)
	}
	if items == nil {
		items = []outputrolldomain.LineageEntry{}
	}
	return items, nil
}

func (s *Service) List(ctx context.Context, req outputrolldomain.ListRequest) (*outputrolldomain.ListResponse, error) {
	filter, err := buildFilter(req)
	if err != nil {
		return nil, err
	}
	page := req.Pagination.Normalize()
	filter.Limit = page.Limit()
	filter.Offset = page.Offset()

	items, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, db.Wrap("output_roll.list", err)
	}
	if items == nil {
		items = []outputrolldomain.OutputRoll{}
	}
	return &outputrolldomain.ListResponse{
		Items:    items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*outputrolldomain.OutputRoll, error) {
	roll, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, db.Wrap("output_roll.get", err)
	}
	if roll == nil {
		return nil, outputrolldomain.ErrNotFound
	}
	return roll, nil
}

func buildFilter(req outputrolldomain.ListRequest) (outputrolldomain.ListFilter, error) {
	var filter outputrolldomain.ListFilter

	if v := strings.TrimSpace(req.JobID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			return filter, outputrolldomain.ErrInvalidFilter
		}
		filter.JobID = id
	}
	if v := strings.TrimSpace(req.ShiftID); v != "" {
		shift, err := strconv.Atoi(v)
		if err != nil || shift < 1 {
			return filter, outputrolldomain.ErrInvalidFilter
		}
		filter.ShiftID = shift
	}
	status, err := outputrolldomain.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return filter, err
	}
	filter.Status = status
	filter.ProductionOrder = strings.TrimSpace(req.ProductionOrder)
	filter.BatchContains = strings.TrimSpace(req.OutputBatch)
	filter.FlagReason = strings.TrimSpace(req.FlagReason)
	filter.CreatedBy = strings.TrimSpace(req.CreatedBy)

	for _, raw := range req.SectionIDs {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return filter, outputrolldomain.ErrInvalidFilter
			}
			filter.SectionIDs = append(filter.SectionIDs, id)
		}
	}

	if filter.StartDay, err = parseDay(req.StartDate); err != nil {
		return filter, err
	}
	if filter.EndDay, err = parseDay(req.EndDate); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseDay(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return "", outputrolldomain.ErrInvalidFilter
	}
	return clock.Day(t), nil
}
