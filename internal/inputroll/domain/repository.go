package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, roll *InputRoll) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*InputRoll, error)
	ListByJob(ctx context.Context, db *gorm.DB, jobID snowflake.ID) ([]InputRoll, error)
	ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]InputRoll, error)
	ListUnconsumed(ctx context.Context, db *gorm.DB, jobID snowflake.ID) ([]InputRoll, error)
	CountInJob(ctx context.Context, db *gorm.DB, jobID snowflake.ID, ids []snowflake.ID) (int64, error)
	// MarkConsumed flips unconsumed rows only, so consumed_at is never
	// re-stamped.
	MarkConsumed(ctx context.Context, db *gorm.DB, jobID snowflake.ID, ids []snowflake.ID, at time.Time) (int64, error)
	RecordConsumption(ctx context.Context, db *gorm.DB, id snowflake.ID, weight decimal.Decimal, document string, at time.Time) (int64, error)
}
