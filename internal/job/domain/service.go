package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
)

type Service interface {
	Open(ctx context.Context, req OpenRequest) (*OpenResponse, error)
	End(ctx context.Context, req EndRequest) (*EndResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Detail, error)
	ListActive(ctx context.Context) ([]Job, error)
}

// OpenRequest starts a run and registers its first input roll. When an
// active job already exists for the production order it is reused.
type OpenRequest struct {
	MachineID       string          `json:"machine_id"`
	ShiftID         int             `json:"shift_id"`
	ProductionOrder string          `json:"production_order"`
	Batch           string          `json:"batch"`
	MaterialNumber  string          `json:"material_number"`
	StartWeight     decimal.Decimal `json:"start_weight"`
	StartMeter      decimal.Decimal `json:"start_meter"`
	CreatedBy       string          `json:"-"`
}

type OpenResponse struct {
	Job       Job                       `json:"job"`
	InputRoll inputrolldomain.InputRoll `json:"input_roll"`
	Reused    bool                      `json:"reused"`
}

// EndRequest closes the job by posting consumption of its active input roll.
type EndRequest struct {
	JobID     snowflake.ID               `json:"-"`
	InputRoll inputrolldomain.EndRequest `json:"input_roll"`
}

type EndResponse struct {
	Job            Job    `json:"job"`
	DocumentNumber string `json:"document_number"`
}

type Detail struct {
	Job        Job                         `json:"job"`
	InputRolls []inputrolldomain.InputRoll `json:"input_rolls"`
}

var (
	ErrNotFound               = errors.New("job_not_found")
	ErrInvalidMachine         = errors.New("invalid_machine")
	ErrInvalidShift           = errors.New("invalid_shift")
	ErrInvalidProductionOrder = errors.New("invalid_production_order")
	ErrJobEnded               = errors.New("job_already_ended")
	ErrMachineMismatch        = errors.New("job_machine_mismatch")
)
