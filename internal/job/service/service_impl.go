package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/config"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	obslogger "github.com/smallbiznis/millroll/internal/observability/logger"
	"github.com/smallbiznis/millroll/pkg/db"
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
	Repo       jobdomain.Repository
	Machines   machinedomain.Service
	InputRolls inputrolldomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	plant      *config.PlantConfigHolder
	repo       jobdomain.Repository
	machines   machinedomain.Service
	inputRolls inputrolldomain.Service
}

func New(p Params) jobdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("job.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		plant:      p.Plant,
		repo:       p.Repo,
		machines:   p.Machines,
		inputRolls: p.InputRolls,
	}
}

func (s *Service) Open(ctx context.Context, req jobdomain.OpenRequest) (*jobdomain.OpenResponse, error) {
	machineID, err := snowflake.ParseString(strings.TrimSpace(req.MachineID))
	if err != nil || machineID == 0 {
		return nil, jobdomain.ErrInvalidMachine
	}
	if req.ShiftID < 1 || req.ShiftID > s.plant.Get().ShiftsPerDay {
		return nil, jobdomain.ErrInvalidShift
	}
	order := strings.TrimSpace(req.ProductionOrder)
	if order == "" {
		return nil, jobdomain.ErrInvalidProductionOrder
	}
	if _, err := s.machines.Get(ctx, machineID); err != nil {
		return nil, err
	}

	creator := strings.TrimSpace(req.CreatedBy)
	resp := &jobdomain.OpenResponse{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindActiveByProductionOrder(ctx, tx, order)
		if err != nil {
			return db.Wrap("job.find_active", err)
		}
		if job != nil {
			if job.MachineID != machineID {
				return jobdomain.ErrMachineMismatch
			}
			resp.Reused = true
		} else {
			now := s.clock.Now().UTC()
			job = &jobdomain.Job{
				ID:              s.genID.Generate(),
				MachineID:       machineID,
				ShiftID:         req.ShiftID,
				ProductionOrder: order,
				CreatedBy:       creator,
				StartAt:         now,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.repo.Insert(ctx, tx, job); err != nil {
				return db.Wrap("job.insert", err)
			}
		}

		roll, err := s.inputRolls.CreateWithTx(ctx, tx, job.ID, inputrolldomain.CreateRequest{
			Batch:          req.Batch,
			MaterialNumber: req.MaterialNumber,
			StartWeight:    req.StartWeight,
			StartMeter:     req.StartMeter,
			CreatedBy:      creator,
		})
		if err != nil {
			return err
		}
		resp.Job = *job
		resp.InputRoll = *roll
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithJob(obslogger.WithContext(ctx, s.log), int64(resp.Job.ID)).Info("job opened",
		zap.String("production_order", order),
		zap.Int("shift_id", resp.Job.ShiftID),
		zap.Bool("reused", resp.Reused),
		zap.String("input_roll_id", resp.InputRoll.ID.String()),
	)
	return resp, nil
}

// End posts consumption for the job's active input roll and closes the job.
// When the ERP rejects the goods issue the job stays open.
func (s *Service) End(ctx context.Context, req jobdomain.EndRequest) (*jobdomain.EndResponse, error) {
	job, err := s.find(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if !job.Active() {
		return nil, jobdomain.ErrJobEnded
	}

	endReq := req.InputRoll
	if endReq.InputRollID == 0 {
		id, err := s.activeInputRoll(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		endReq.InputRollID = id
	} else {
		roll, err := s.inputRolls.Get(ctx, endReq.InputRollID)
		if err != nil {
			return nil, err
		}
		if roll.JobID != job.ID {
			return nil, inputrolldomain.ErrUnknownInputRoll
		}
	}
	if endReq.ProductionOrder == "" {
		endReq.ProductionOrder = job.ProductionOrder
	}

	ended, err := s.inputRolls.End(ctx, endReq)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	rows, err := s.repo.MarkEnded(ctx, s.db, job.ID, now)
	if err != nil {
		return nil, db.Wrap("job.mark_ended", err)
	}
	if rows == 0 {
		return nil, jobdomain.ErrJobEnded
	}
	job.EndAt = &now
	job.UpdatedAt = now

	obslogger.WithJob(obslogger.WithContext(ctx, s.log), int64(job.ID)).Info("job ended",
		zap.String("material_document", ended.DocumentNumber),
	)
	return &jobdomain.EndResponse{Job: *job, DocumentNumber: ended.DocumentNumber}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*jobdomain.Detail, error) {
	job, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	rolls, err := s.inputRolls.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if rolls == nil {
		rolls = []inputrolldomain.InputRoll{}
	}
	return &jobdomain.Detail{Job: *job, InputRolls: rolls}, nil
}

func (s *Service) ListActive(ctx context.Context) ([]jobdomain.Job, error) {
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, db.Wrap("job.list_active", err)
	}
	return items, nil
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*jobdomain.Job, error) {
	job, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, db.Wrap("job.get", err)
	}
	if job == nil {
		return nil, jobdomain.ErrNotFound
	}
	return job, nil
}

// activeInputRoll is the most recently registered roll without a material
// document.
func (s *Service) activeInputRoll(ctx context.Context, jobID snowflake.ID) (snowflake.ID, error) {
	rolls, err := s.inputRolls.ListByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	for i := len(rolls) - 1; i >= 0; i-- {
		if !rolls[i].Ended() {
			return rolls[i].ID, nil
		}
	}
	return 0, inputrolldomain.ErrNotFound
}
