package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() jobdomain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, machine_id, shift_id, production_order, created_by, start_at, end_at, created_at, updated_at FROM jobs`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, j *jobdomain.Job) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO jobs (id, machine_id, shift_id, production_order, created_by, start_at, end_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID,
		j.MachineID,
		j.ShiftID,
		j.ProductionOrder,
		j.CreatedBy,
		j.StartAt,
		j.EndAt,
		j.CreatedAt,
		j.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*jobdomain.Job, error) {
	var j jobdomain.Job
	if err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&j).Error; err != nil {
		return nil, err
	}
	if j.ID == 0 {
		return nil, nil
	}
	return &j, nil
}

func (r *repo) FindActiveByProductionOrder(ctx context.Context, db *gorm.DB, productionOrder string) (*jobdomain.Job, error) {
	var j jobdomain.Job
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE production_order = ? AND end_at IS NULL ORDER BY id ASC LIMIT 1`,
		productionOrder,
	).Scan(&j).Error
	if err != nil {
		return nil, err
	}
	if j.ID == 0 {
		return nil, nil
	}
	return &j, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]jobdomain.Job, error) {
	var items []jobdomain.Job
	if err := db.WithContext(ctx).Raw(selectColumns + ` WHERE end_at IS NULL ORDER BY id ASC`).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkEnded(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE jobs SET end_at = ?, updated_at = ? WHERE id = ? AND end_at IS NULL`,
		at,
		at,
		id,
	)
	return result.RowsAffected, result.Error
}
