package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Job is one machine/shift/production-order run. EndAt is set once, after
// the closing goods issue is accepted by the ERP.
type Job struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	MachineID       snowflake.ID `json:"machine_id" gorm:"not null;index:idx_jobs_machine"`
	ShiftID         int          `json:"shift_id" gorm:"not null"`
	ProductionOrder string       `json:"production_order" gorm:"type:varchar(64);not null;index:idx_jobs_production_order,priority:1"`
	CreatedBy       string       `json:"created_by" gorm:"type:text;not null"`
	StartAt         time.Time    `json:"start_at" gorm:"not null"`
	EndAt           *time.Time   `json:"end_at,omitempty" gorm:"index:idx_jobs_production_order,priority:2"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Job) TableName() string { return "jobs" }

func (j *Job) Active() bool {
	return j != nil && j.EndAt == nil
}
