package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InputRoll is a raw-material roll issued to a job. ConsumedAt is set iff
// IsConsumed; a consumed roll never becomes unconsumed.
type InputRoll struct {
	ID               snowflake.ID     `json:"id" gorm:"primaryKey"`
	JobID            snowflake.ID     `json:"job_id" gorm:"not null;index:idx_input_rolls_job,priority:1"`
	Batch            string           `json:"batch" gorm:"type:text;not null"`
	MaterialNumber   string           `json:"material_number" gorm:"type:text;not null"`
	StartWeight      decimal.Decimal  `json:"start_weight" gorm:"type:decimal(14,3);not null"`
	StartMeter       decimal.Decimal  `json:"start_meter" gorm:"type:decimal(14,3);not null"`
	IsConsumed       bool             `json:"is_consumed" gorm:"not null;default:false;index:idx_input_rolls_job,priority:2"`
	ConsumedAt       *time.Time       `json:"consumed_at,omitempty"`
	ConsumedWeight   *decimal.Decimal `json:"consumed_weight,omitempty" gorm:"type:decimal(14,3)"`
	MaterialDocument *string          `json:"material_document,omitempty" gorm:"type:text"`
	CreatedBy        string           `json:"created_by" gorm:"type:text;not null"`
	CreatedAt        time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time        `json:"updated_at" gorm:"not null"`
}

func (InputRoll) TableName() string { return "input_rolls" }

// Ended reports whether the roll's consumption was posted to the ERP.
func (r *InputRoll) Ended() bool {
	return r != nil && r.MaterialDocument != nil && *r.MaterialDocument != ""
}
