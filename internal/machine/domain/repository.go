package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, m *Machine) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Machine, error)
	List(ctx context.Context, db *gorm.DB) ([]Machine, error)
}
