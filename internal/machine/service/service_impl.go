package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/cache"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	"github.com/smallbiznis/millroll/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo machinedomain.Repository
}

const labelTTL = 5 * time.Minute

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   machinedomain.Repository
	labels cache.Cache[snowflake.ID, string]
}

func New(p Params) machinedomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("machine.service"),
		repo:   p.Repo,
		labels: cache.NewTTLCache[snowflake.ID, string](),
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*machinedomain.Machine, error) {
	m, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, db.Wrap("machine.get", err)
	}
	if m == nil {
		return nil, machinedomain.ErrNotFound
	}
	return m, nil
}

// Label results are cached for labelTTL.
func (s *Service) Label(ctx context.Context, id snowflake.ID) (string, error) {
	if label, ok := s.labels.Get(id); ok {
		return label, nil
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	label := strings.TrimSpace(m.Label)
	if label == "" {
		return "", machinedomain.ErrMissingLabel
	}
	s.labels.Set(id, label, labelTTL)
	return label, nil
}

func (s *Service) List(ctx context.Context) ([]machinedomain.Machine, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, db.Wrap("machine.list", err)
	}
	return items, nil
}
