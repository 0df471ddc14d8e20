package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/erp"
	obslogger "github.com/smallbiznis/millroll/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/millroll/internal/observability/metrics"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/smallbiznis/millroll/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    postingdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    postingdomain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) postingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("posting.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Begin(ctx context.Context, req postingdomain.BeginRequest) (*postingdomain.Posting, error) {
	switch req.Kind {
	case postingdomain.KindGoodsIssue, postingdomain.KindRollReceipt:
	default:
		return nil, postingdomain.ErrInvalidKind
	}
	if strings.TrimSpace(req.ReferenceType) == "" || req.ReferenceID == 0 {
		return nil, postingdomain.ErrInvalidReference
	}

	payload, err := json.Marshal(req.Request)
	if err != nil {
		return nil, fmt.Errorf("encode posting request: %w", err)
	}

	now := s.clock.Now().UTC()
	p := &postingdomain.Posting{
		ID:             s.genID.Generate(),
		IdempotencyKey: ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Kind:           req.Kind,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    req.ReferenceID,
		Status:         postingdomain.StatusPending,
		Request:        datatypes.JSON(payload),
		AttemptedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, p); err != nil {
		return nil, db.Wrap("erp_posting.insert", err)
	}
	return p, nil
}

func (s *Service) Succeed(ctx context.Context, tx *gorm.DB, p *postingdomain.Posting, document string) error {
	if tx == nil {
		tx = s.db
	}
	now := s.clock.Now().UTC()
	doc := document
	rows, err := s.repo.Complete(ctx, tx, p.ID, postingdomain.StatusSucceeded, &doc, nil, now)
	if err != nil {
		return db.Wrap("erp_posting.complete", err)
	}
	if rows == 0 {
		return postingdomain.ErrNotPending
	}
	p.Status = postingdomain.StatusSucceeded
	p.DocumentNumber = &doc
	p.CompletedAt = &now
	s.recordOutcome(ctx, p)
	return nil
}

// Fail records a rejected call. Transport failures and unreadable success
// responses are stored as unknown because the ERP may have committed them.
func (s *Service) Fail(ctx context.Context, p *postingdomain.Posting, cause error) error {
	status := postingdomain.StatusFailed
	if erp.IsAmbiguous(cause) {
		status = postingdomain.StatusUnknown
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	now := s.clock.Now().UTC()
	rows, err := s.repo.Complete(ctx, s.db, p.ID, status, nil, &msg, now)
	if err != nil {
		return db.Wrap("erp_posting.complete", err)
	}
	if rows == 0 {
		return postingdomain.ErrNotPending
	}
	p.Status = status
	p.ErrorMessage = &msg
	p.CompletedAt = &now
	s.recordOutcome(ctx, p)
	return nil
}

func (s *Service) Execute(
	ctx context.Context,
	req postingdomain.BeginRequest,
	call postingdomain.CallFunc,
	commit postingdomain.CommitFunc,
) (string, error) {
	p, err := s.Begin(ctx, req)
	if err != nil {
		return "", err
	}
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("kind", string(p.Kind)),
		zap.String("idempotency_key", p.IdempotencyKey),
		zap.String("reference_type", p.ReferenceType),
		zap.String("reference_id", p.ReferenceID.String()),
	)

	start := time.Now()
	document, callErr := call(ctx, p.IdempotencyKey)
	obsmetrics.Posting().ObserveCall(string(p.Kind), time.Since(start))

	if callErr != nil {
		if err := s.Fail(ctx, p, callErr); err != nil {
			log.Error("failed to journal erp rejection", zap.Error(err))
		}
		log.Warn("erp posting failed", zap.String("status", string(p.Status)), zap.Error(callErr))
		return "", callErr
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if commit != nil {
			if err := commit(tx, document); err != nil {
				return err
			}
		}
		return s.Succeed(ctx, tx, p, document)
	})
	if txErr != nil {
		// The ERP accepted the movement; keep the journal truthful even
		// though the local write did not land.
		if err := s.Succeed(ctx, nil, p, document); err != nil && !errors.Is(err, postingdomain.ErrNotPending) {
			log.Error("failed to journal erp success", zap.Error(err))
		}
		log.Error("erp posting succeeded but local commit failed", zap.String("document", document), zap.Error(txErr))
		return "", txErr
	}

	log.Info("erp posting succeeded", zap.String("document", document))
	return document, nil
}

func (s *Service) List(ctx context.Context, req postingdomain.ListRequest) ([]postingdomain.Posting, error) {
	filter := postingdomain.ListFilter{
		ReferenceType: strings.TrimSpace(req.ReferenceType),
		Limit:         req.Limit,
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		parsed, err := postingdomain.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = parsed
	}
	if ref := strings.TrimSpace(req.ReferenceID); ref != "" {
		id, err := snowflake.ParseString(ref)
		if err != nil {
			return nil, postingdomain.ErrInvalidReference
		}
		filter.ReferenceID = id
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, db.Wrap("erp_posting.list", err)
	}
	return items, nil
}

// SweepPending moves postings left pending for longer than olderThan to
// unknown. A pending row that old means the process died mid-call.
func (s *Service) SweepPending(ctx context.Context, olderThan time.Duration, limit int) ([]postingdomain.Posting, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	now := s.clock.Now().UTC()
	stale, err := s.repo.ListPendingBefore(ctx, s.db, now.Add(-olderThan), limit)
	if err != nil {
		return nil, db.Wrap("erp_posting.list_pending", err)
	}

	msg := "no outcome recorded; reconcile with ERP by idempotency key"
	swept := make([]postingdomain.Posting, 0, len(stale))
	for i := range stale {
		p := stale[i]
		rows, err := s.repo.Complete(ctx, s.db, p.ID, postingdomain.StatusUnknown, nil, &msg, now)
		if err != nil {
			return swept, db.Wrap("erp_posting.complete", err)
		}
		if rows == 0 {
			continue
		}
		p.Status = postingdomain.StatusUnknown
		p.ErrorMessage = &msg
		p.CompletedAt = &now
		swept = append(swept, p)
		s.recordOutcome(ctx, &p)

		s.log.Warn("stale erp posting marked unknown",
			zap.String("idempotency_key", p.IdempotencyKey),
			zap.String("kind", string(p.Kind)),
			zap.String("reference_type", p.ReferenceType),
			zap.String("reference_id", p.ReferenceID.String()),
			zap.Time("attempted_at", p.AttemptedAt),
		)
	}
	obsmetrics.Posting().AddMarkedUnknown(len(swept))
	return swept, nil
}

func (s *Service) recordOutcome(ctx context.Context, p *postingdomain.Posting) {
	obsmetrics.Posting().IncOutcome(string(p.Kind), string(p.Status))
	s.metrics.RecordERPPosting(ctx, string(p.Kind), string(p.Status))
}
