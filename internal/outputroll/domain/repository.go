package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ListFilter struct {
	JobID           snowflake.ID
	ShiftID         int
	Status          Status
	ProductionOrder string
	BatchContains   string
	FlagReason      string
	CreatedBy       string
	SectionIDs      []int64
	StartDay        string
	EndDay          string
	Limit           int
	Offset          int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, roll *OutputRoll) error
	InsertInputs(ctx context.Context, db *gorm.DB, links []OutputRollInput) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OutputRoll, error)
	CountForDay(ctx context.Context, db *gorm.DB, jobID snowflake.ID, day string) (int64, error)
	BatchExists(ctx context.Context, db *gorm.DB, batch string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]OutputRoll, int64, error)
	ListLineage(ctx context.Context, db *gorm.DB, outputRollID snowflake.ID) ([]LineageEntry, error)
	// ApplyReconciliation only touches rolls that were never reconciled.
	ApplyReconciliation(
		ctx context.Context,
		db *gorm.DB,
		id snowflake.ID,
		meter decimal.Decimal,
		weight decimal.Decimal,
		updatedBy string,
		at time.Time,
	) (int64, error)
}
