package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger is the part of the input roll store used while resolving
// provenance. Both methods run in the caller's transaction when tx is set.
type Ledger interface {
	UnconsumedFor(ctx context.Context, tx *gorm.DB, jobID snowflake.ID) ([]InputRoll, error)
	MarkConsumed(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, ids []snowflake.ID, at time.Time) error
}

type Service interface {
	Ledger

	Create(ctx context.Context, req CreateRequest) (*InputRoll, error)
	CreateWithTx(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, req CreateRequest) (*InputRoll, error)
	Get(ctx context.Context, id snowflake.ID) (*InputRoll, error)
	ListByJob(ctx context.Context, jobID snowflake.ID) ([]InputRoll, error)
	RecordConsumption(ctx context.Context, tx *gorm.DB, rollID snowflake.ID, weight decimal.Decimal, document string) error
	End(ctx context.Context, req EndRequest) (*EndResponse, error)
}

type CreateRequest struct {
	JobID          string          `json:"job_id"`
	Batch          string          `json:"batch"`
	MaterialNumber string          `json:"material_number"`
	StartWeight    decimal.Decimal `json:"start_weight"`
	StartMeter     decimal.Decimal `json:"start_meter"`
	CreatedBy      string          `json:"-"`
}

// EndRequest posts the consumed quantity of an input roll as a goods issue.
// Empty material, batch and production order default to the roll's own.
type EndRequest struct {
	InputRollID     snowflake.ID    `json:"-"`
	MaterialNumber  string          `json:"material_number"`
	Batch           string          `json:"batch"`
	ProductionOrder string          `json:"production_order"`
	ConsumedWeight  decimal.Decimal `json:"consumed_weight"`
	Unit            string          `json:"unit"`
	PostingDate     string          `json:"posting_date"`
	StorageLocation string          `json:"storage_location"`
}

type EndResponse struct {
	DocumentNumber string    `json:"document_number"`
	InputRoll      InputRoll `json:"input_roll"`
}

const ReferenceType = "input_roll"

var (
	ErrNotFound               = errors.New("input_roll_not_found")
	ErrInvalidJob             = errors.New("invalid_job")
	ErrInvalidBatch           = errors.New("invalid_batch")
	ErrInvalidMaterial        = errors.New("invalid_material_number")
	ErrInvalidWeight          = errors.New("invalid_weight")
	ErrInvalidUnit            = errors.New("invalid_unit")
	ErrInvalidPostingDate     = errors.New("invalid_posting_date")
	ErrInvalidProductionOrder = errors.New("invalid_production_order")
	ErrBatchMismatch          = errors.New("input_roll_batch_mismatch")
	ErrUnknownInputRoll       = errors.New("unknown_input_roll")
	ErrAlreadyEnded           = errors.New("input_roll_already_ended")
)
