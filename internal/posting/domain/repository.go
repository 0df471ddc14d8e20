package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Posting) error
	// Complete moves a pending posting to a terminal status. It returns the
	// number of rows changed so callers can detect a lost race.
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, document, errorMessage *string, at time.Time) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Posting, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Posting, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Posting, error)
	ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Posting, error)
}

type ListFilter struct {
	Status        Status
	ReferenceType string
	ReferenceID   snowflake.ID
	Limit         int
}
