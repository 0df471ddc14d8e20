package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	FindActiveByProductionOrder(ctx context.Context, db *gorm.DB, productionOrder string) (*Job, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Job, error)
	// MarkEnded sets end_at on an active job and reports rows changed.
	MarkEnded(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
}
