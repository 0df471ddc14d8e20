package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindGoodsIssue  Kind = "goods_issue"
	KindRollReceipt Kind = "roll_receipt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusUnknown marks a call whose ERP-side outcome could not be
	// observed. These rows need operator reconciliation against the ERP.
	StatusUnknown Status = "unknown"
)

// Posting journals one ERP call. The row is written before the call so the
// idempotency key survives a crash or timeout.
type Posting struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	IdempotencyKey string         `json:"idempotency_key" gorm:"type:varchar(26);not null;uniqueIndex:ux_erp_postings_key"`
	Kind           Kind           `json:"kind" gorm:"type:text;not null"`
	ReferenceType  string         `json:"reference_type" gorm:"type:text;not null;index:idx_erp_postings_reference,priority:1"`
	ReferenceID    snowflake.ID   `json:"reference_id" gorm:"not null;index:idx_erp_postings_reference,priority:2"`
	Status         Status         `json:"status" gorm:"type:text;not null;index:idx_erp_postings_status,priority:1"`
	DocumentNumber *string        `json:"document_number,omitempty" gorm:"type:text"`
	ErrorMessage   *string        `json:"error_message,omitempty" gorm:"type:text"`
	Request        datatypes.JSON `json:"request" gorm:"type:json"`
	AttemptedAt    time.Time      `json:"attempted_at" gorm:"not null;index:idx_erp_postings_status,priority:2"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func (Posting) TableName() string { return "erp_postings" }
