package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() inputrolldomain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, job_id, batch, material_number, start_weight, start_meter, is_consumed,
	consumed_at, consumed_weight, material_document, created_by, created_at, updated_at
	FROM input_rolls`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, roll *inputrolldomain.InputRoll) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO input_rolls (id, job_id, batch, material_number, start_weight, start_meter, is_consumed, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		roll.ID,
		roll.JobID,
		roll.Batch,
		roll.MaterialNumber,
		roll.StartWeight,
		roll.StartMeter,
		roll.IsConsumed,
		roll.CreatedBy,
		roll.CreatedAt,
		roll.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*inputrolldomain.InputRoll, error) {
	var roll inputrolldomain.InputRoll
	if err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&roll).Error; err != nil {
		return nil, err
	}
	if roll.ID == 0 {
		return nil, nil
	}
	return &roll, nil
}

func (r *repo) ListByJob(ctx context.Context, db *gorm.DB, jobID snowflake.ID) ([]inputrolldomain.InputRoll, error) {
	var items []inputrolldomain.InputRoll
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE job_id = ? ORDER BY id ASC`, jobID).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]inputrolldomain.InputRoll, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []inputrolldomain.InputRoll
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE id IN ? ORDER BY id ASC`, ids).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListUnconsumed(ctx context.Context, db *gorm.DB, jobID snowflake.ID) ([]inputrolldomain.InputRoll, error) {
	var items []inputrolldomain.InputRoll
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE job_id = ? AND is_consumed = ? ORDER BY id ASC`,
		jobID,
		false,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountInJob(ctx context.Context, db *gorm.DB, jobID snowflake.ID, ids []snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM input_rolls WHERE job_id = ? AND id IN ?`,
		jobID,
		ids,
	).Scan(&count).Error
	return count, err
}

func (r *repo) MarkConsumed(ctx context.Context, db *gorm.DB, jobID snowflake.ID, ids []snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE input_rolls SET is_consumed = ?, consumed_at = ?, updated_at = ?
		 WHERE job_id = ? AND id IN ? AND is_consumed = ?`,
		true,
		at,
		at,
		jobID,
		ids,
		false,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) RecordConsumption(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	weight decimal.Decimal,
	document string,
	at time.Time,
) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE input_rolls
		 SET consumed_weight = ?, material_document = ?, is_consumed = ?,
		     consumed_at = COALESCE(consumed_at, ?), updated_at = ?
		 WHERE id = ? AND material_document IS NULL`,
		weight,
		document,
		true,
		at,
		at,
		id,
	)
	return result.RowsAffected, result.Error
}
