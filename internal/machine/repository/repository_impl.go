package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() machinedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *machinedomain.Machine) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO machines (id, name, label, section_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Name,
		m.Label,
		m.SectionID,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*machinedomain.Machine, error) {
	var m machinedomain.Machine
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, label, section_id, created_at, updated_at FROM machines WHERE id = ?`,
		id,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]machinedomain.Machine, error) {
	var items []machinedomain.Machine
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, label, section_id, created_at, updated_at FROM machines ORDER BY name ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
