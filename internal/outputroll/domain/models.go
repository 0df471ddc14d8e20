package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// OutputRoll is a produced roll. FinalWeight stays zero until the roll is
// weighed; reconciliation mutates FinalMeter and FinalWeight exactly once.
type OutputRoll struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	JobID          snowflake.ID    `json:"job_id" gorm:"not null;index:idx_output_rolls_job_day,priority:1"`
	InputRollID    snowflake.ID    `json:"input_roll_id" gorm:"not null;index"`
	OutputBatch    string          `json:"output_batch" gorm:"type:varchar(64);not null;uniqueIndex"`
	FromInputBatch string          `json:"from_input_batch" gorm:"type:text;not null"`
	FinalMeter     decimal.Decimal `json:"final_meter" gorm:"type:decimal(14,2);not null"`
	FinalWeight    decimal.Decimal `json:"final_weight" gorm:"type:decimal(14,3);not null;default:0"`
	CoreWeight     decimal.Decimal `json:"core_weight" gorm:"type:decimal(14,3);not null;default:0"`
	FlagReason     *string         `json:"flag_reason,omitempty" gorm:"type:text"`
	FlagCount      int             `json:"flag_count" gorm:"not null;default:0"`
	ProductionDay  string          `json:"production_day" gorm:"type:varchar(10);not null;index:idx_output_rolls_job_day,priority:2"`
	CreatedBy      string          `json:"created_by" gorm:"type:text;not null"`
	UpdatedBy      *string         `json:"updated_by,omitempty" gorm:"type:text"`
	ReconciledAt   *time.Time      `json:"reconciled_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (OutputRoll) TableName() string { return "output_rolls" }

func (r *OutputRoll) Reconciled() bool {
	return r != nil && r.ReconciledAt != nil
}

func (r *OutputRoll) Flagged() bool {
	return r != nil && r.FlagReason != nil && *r.FlagReason != ""
}

// OutputRollInput links an output roll to an input roll it was produced
// from. Position follows ascending input roll id.
type OutputRollInput struct {
	OutputRollID snowflake.ID `json:"output_roll_id" gorm:"primaryKey;autoIncrement:false"`
	InputRollID  snowflake.ID `json:"input_roll_id" gorm:"primaryKey;autoIncrement:false;index"`
	Position     int          `json:"position" gorm:"not null"`
}

func (OutputRollInput) TableName() string { return "output_roll_inputs" }

// LineageEntry is an OutputRollInput joined with its input roll.
type LineageEntry struct {
	InputRollID    snowflake.ID `json:"input_roll_id"`
	Position       int          `json:"position"`
	Batch          string       `json:"batch"`
	MaterialNumber string       `json:"material_number"`
}

// Status filters output roll listings.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFlagged   Status = "flagged"
)
