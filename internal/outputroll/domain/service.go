package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/millroll/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Detail, error)
	ApplyFinalWeight(ctx context.Context, req FinalWeightRequest) (*Detail, error)
	Get(ctx context.Context, id snowflake.ID) (*Detail, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Lineage(ctx context.Context, id snowflake.ID) ([]LineageEntry, error)
}

type CreateRequest struct {
	JobID        string          `json:"job_id"`
	InputRollID  string          `json:"input_roll_id"`
	NominalMeter decimal.Decimal `json:"final_meter"`
	CoreWeight   decimal.Decimal `json:"core_weight"`
	FlagReason   string          `json:"flag_reason"`
	FlagCount    int             `json:"flag_count"`
	CreatedBy    string          `json:"-"`
}

type FinalWeightRequest struct {
	OutputRollID snowflake.ID    `json:"-"`
	RawWeight    decimal.Decimal `json:"final_weight"`
	UpdatedBy    string          `json:"-"`
}

type ListRequest struct {
	JobID           string   `form:"job_id"`
	ShiftID         string   `form:"shift_id"`
	Status          string   `form:"status"`
	ProductionOrder string   `form:"production_order"`
	OutputBatch     string   `form:"output_batch"`
	FlagReason      string   `form:"flag_reason"`
	CreatedBy       string   `form:"created_by"`
	SectionIDs      []string `form:"section_ids"`
	StartDate       string   `form:"start_date"`
	EndDate         string   `form:"end_date"`
	pagination.Pagination
}

type ListResponse struct {
	Items    []OutputRoll        `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Detail struct {
	OutputRoll
	Lineage []LineageEntry `json:"lineage"`
}

const ReferenceType = "output_roll"

var (
	ErrNotFound            = errors.New("output_roll_not_found")
	ErrInvalidJob          = errors.New("invalid_job")
	ErrInvalidInputRoll    = errors.New("invalid_input_roll")
	ErrInputRollMismatch   = errors.New("input_roll_not_in_job")
	ErrInvalidMeter        = errors.New("invalid_final_meter")
	ErrInvalidCoreWeight   = errors.New("invalid_core_weight")
	ErrInvalidWeight       = errors.New("invalid_final_weight")
	ErrInvalidFlagCount    = errors.New("invalid_flag_count")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidFilter       = errors.New("invalid_filter")
	ErrAlreadyReconciled   = errors.New("output_roll_already_reconciled")
	ErrAllocationExhausted = errors.New("roll_number_allocation_exhausted")
)

func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case "":
		return "", nil
	case StatusPending, StatusCompleted, StatusFlagged:
		return Status(value), nil
	default:
		return "", ErrInvalidStatus
	}
}
