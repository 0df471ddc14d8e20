package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Machine is a production line. Label is the short code embedded in output
// batch codes.
type Machine struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:varchar(128);not null;uniqueIndex:ux_machines_name"`
	Label     string       `json:"label" gorm:"type:text;not null"`
	SectionID int64        `json:"section_id" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Machine) TableName() string { return "machines" }
