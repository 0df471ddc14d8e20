package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/erp"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	obslogger "github.com/smallbiznis/millroll/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/millroll/internal/observability/metrics"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/smallbiznis/millroll/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const postingDateLayout = "2006-01-02T15:04:05"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    inputrolldomain.Repository
	JobRepo jobdomain.Repository
	Posting postingdomain.Service
	ERP     erp.Client
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    inputrolldomain.Repository
	jobRepo jobdomain.Repository
	posting postingdomain.Service
	erp     erp.Client
	metrics *obsmetrics.Metrics
}

func New(p Params) inputrolldomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("inputroll.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		jobRepo: p.JobRepo,
		posting: p.Posting,
		erp:     p.ERP,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req inputrolldomain.CreateRequest) (*inputrolldomain.InputRoll, error) {
	jobID, err := snowflake.ParseString(strings.TrimSpace(req.JobID))
	if err != nil || jobID == 0 {
		return nil, inputrolldomain.ErrInvalidJob
	}

	var roll *inputrolldomain.InputRoll
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.jobRepo.FindByID(ctx, tx, jobID)
		if err != nil {
			return db.Wrap("job.get", err)
		}
		if job == nil {
			return jobdomain.ErrNotFound
		}
		if !job.Active() {
			return jobdomain.ErrJobEnded
		}
		roll, err = s.CreateWithTx(ctx, tx, jobID, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return roll, nil
}

// CreateWithTx inserts the roll without checking the job. Callers own the
// job lookup and the transaction.
func (s *Service) CreateWithTx(
	ctx context.Context,
	tx *gorm.DB,
	jobID snowflake.ID,
	req inputrolldomain.CreateRequest,
) (*inputrolldomain.InputRoll, error) {
	if tx == nil {
		tx = s.db
	}
	if jobID == 0 {
		return nil, inputrolldomain.ErrInvalidJob
	}
	batch := strings.TrimSpace(req.Batch)
	if batch == "" {
		return nil, inputrolldomain.ErrInvalidBatch
	}
	material := strings.TrimSpace(req.MaterialNumber)
	if material == "" {
		return nil, inputrolldomain.ErrInvalidMaterial
	}
	if req.StartWeight.IsNegative() || req.StartMeter.IsNegative() {
		return nil, inputrolldomain.ErrInvalidWeight
	}

	now := s.clock.Now().UTC()
	roll := &inputrolldomain.InputRoll{
		ID:             s.genID.Generate(),
		JobID:          jobID,
		Batch:          batch,
		MaterialNumber: material,
		StartWeight:    req.StartWeight,
		StartMeter:     req.StartMeter,
		CreatedBy:      strings.TrimSpace(req.CreatedBy),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, tx, roll); err != nil {
		return nil, db.Wrap("input_roll.insert", err)
	}
	return roll, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*inputrolldomain.InputRoll, error) {
	roll, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, db.Wrap("input_roll.get", err)
	}
	if roll == nil {
		return nil, inputrolldomain.ErrNotFound
	}
	return roll, nil
}

func (s *Service) ListByJob(ctx context.Context, jobID snowflake.ID) ([]inputrolldomain.InputRoll, error) {
	items, err := s.repo.ListByJob(ctx, s.db, jobID)
	if err != nil {
		return nil, db.Wrap("input_roll.list", err)
	}
	return items, nil
}

func (s *Service) UnconsumedFor(ctx context.Context, tx *gorm.DB, jobID snowflake.ID) ([]inputrolldomain.InputRoll, error) {
	if tx == nil {
		tx = s.db
	}
	items, err := s.repo.ListUnconsumed(ctx, tx, jobID)
	if err != nil {
		return nil, db.Wrap("input_roll.list_unconsumed", err)
	}
	return items, nil
}

// MarkConsumed flags every id as consumed or fails without flagging any.
// Rolls that are already consumed keep their original consumed_at.
func (s *Service) MarkConsumed(
	ctx context.Context,
	tx *gorm.DB,
	jobID snowflake.ID,
	ids []snowflake.ID,
	at time.Time,
) error {
	if len(ids) == 0 {
		return nil
	}
	if tx == nil {
		tx = s.db
	}
	ids = dedupe(ids)

	return tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.repo.CountInJob(ctx, tx, jobID, ids)
		if err != nil {
			return db.Wrap("input_roll.count", err)
		}
		if count != int64(len(ids)) {
			return inputrolldomain.ErrUnknownInputRoll
		}
		if _, err := s.repo.MarkConsumed(ctx, tx, jobID, ids, at.UTC()); err != nil {
			return db.Wrap("input_roll.mark_consumed", err)
		}
		return nil
	})
}

func (s *Service) RecordConsumption(
	ctx context.Context,
	tx *gorm.DB,
	rollID snowflake.ID,
	weight decimal.Decimal,
	document string,
) error {
	if tx == nil {
		tx = s.db
	}
	rows, err := s.repo.RecordConsumption(ctx, tx, rollID, weight, document, s.clock.Now().UTC())
	if err != nil {
		return db.Wrap("input_roll.record_consumption", err)
	}
	if rows == 0 {
		return inputrolldomain.ErrAlreadyEnded
	}
	return nil
}

// End posts the consumed weight of the roll as a goods issue against the
// job's production order and records the returned material document.
func (s *Service) End(ctx context.Context, req inputrolldomain.EndRequest) (*inputrolldomain.EndResponse, error) {
	roll, err := s.Get(ctx, req.InputRollID)
	if err != nil {
		return nil, err
	}
	if roll.Ended() {
		return nil, inputrolldomain.ErrAlreadyEnded
	}
	job, err := s.jobRepo.FindByID(ctx, s.db, roll.JobID)
	if err != nil {
		return nil, db.Wrap("job.get", err)
	}
	if job == nil {
		return nil, jobdomain.ErrNotFound
	}

	issue, err := s.goodsIssue(roll, job, req)
	if err != nil {
		return nil, err
	}

	log := obslogger.WithJob(obslogger.WithContext(ctx, s.log), int64(job.ID)).With(
		zap.String("input_roll_id", roll.ID.String()),
		zap.String("batch", issue.Batch),
	)

	document, err := s.posting.Execute(ctx,
		postingdomain.BeginRequest{
			Kind:          postingdomain.KindGoodsIssue,
			ReferenceType: inputrolldomain.ReferenceType,
			ReferenceID:   roll.ID,
			Request:       issue,
		},
		func(ctx context.Context, key string) (string, error) {
			issue.IdempotencyKey = key
			return s.erp.PostConsumption(ctx, issue)
		},
		func(tx *gorm.DB, document string) error {
			return s.RecordConsumption(ctx, tx, roll.ID, issue.Quantity, document)
		},
	)
	if err != nil {
		log.Warn("input roll consumption not posted", zap.Error(err))
		return nil, err
	}
	s.metrics.RecordInputRollEnded(ctx)

	updated, err := s.Get(ctx, roll.ID)
	if err != nil {
		return nil, err
	}
	log.Info("input roll ended", zap.String("material_document", document))
	return &inputrolldomain.EndResponse{DocumentNumber: document, InputRoll: *updated}, nil
}

func (s *Service) goodsIssue(
	roll *inputrolldomain.InputRoll,
	job *jobdomain.Job,
	req inputrolldomain.EndRequest,
) (erp.GoodsIssue, error) {
	batch := strings.TrimSpace(req.Batch)
	if batch == "" {
		batch = roll.Batch
	}
	if batch != roll.Batch {
		return erp.GoodsIssue{}, inputrolldomain.ErrBatchMismatch
	}
	material := strings.TrimSpace(req.MaterialNumber)
	if material == "" {
		material = roll.MaterialNumber
	}
	order := strings.TrimSpace(req.ProductionOrder)
	if order == "" {
		order = job.ProductionOrder
	}
	if order == "" {
		return erp.GoodsIssue{}, inputrolldomain.ErrInvalidProductionOrder
	}
	if !req.ConsumedWeight.IsPositive() {
		return erp.GoodsIssue{}, inputrolldomain.ErrInvalidWeight
	}

	unit := strings.ToUpper(strings.TrimSpace(req.Unit))
	switch unit {
	case "":
		unit = erp.UnitKilogram
	case erp.UnitKilogram, erp.UnitMeter:
	default:
		return erp.GoodsIssue{}, inputrolldomain.ErrInvalidUnit
	}

	postingDate, err := s.postingDate(req.PostingDate)
	if err != nil {
		return erp.GoodsIssue{}, err
	}

	return erp.GoodsIssue{
		Material:        material,
		Batch:           batch,
		ProductionOrder: order,
		Quantity:        req.ConsumedWeight,
		Unit:            unit,
		PostingDate:     postingDate,
		StorageLocation: strings.TrimSpace(req.StorageLocation),
	}, nil
}

// postingDate accepts a bare day or a full timestamp and renders the ERP
// form. An empty value means today in plant time.
func (s *Service) postingDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return clock.Day(s.clock.Now()) + "T00:00:00", nil
	}
	if t, err := time.Parse(postingDateLayout, value); err == nil {
		return t.Format(postingDateLayout), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.Format(postingDateLayout), nil
	}
	return "", inputrolldomain.ErrInvalidPostingDate
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

