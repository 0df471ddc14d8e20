package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() outputrolldomain.Repository {
	return &repo{}
}

const columns = `o.id, o.job_id, o.input_roll_id, o.output_batch, o.from_input_batch, o.final_meter,
	o.final_weight, o.core_weight, o.flag_reason, o.flag_count, o.production_day, o.created_by,
	o.updated_by, o.reconciled_at, o.created_at, o.updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, roll *outputrolldomain.OutputRoll) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO output_rolls (id, job_id, input_roll_id, output_batch, from_input_batch, final_meter,
			final_weight, core_weight, flag_reason, flag_count, production_day, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		roll.ID,
		roll.JobID,
		roll.InputRollID,
		roll.OutputBatch,
		roll.FromInputBatch,
		roll.FinalMeter,
		roll.FinalWeight,
		roll.CoreWeight,
		roll.FlagReason,
		roll.FlagCount,
		roll.ProductionDay,
		roll.CreatedBy,
		roll.CreatedAt,
		roll.UpdatedAt,
	).Error
}

func (r *repo) InsertInputs(ctx context.Context, db *gorm.DB, links []outputrolldomain.OutputRollInput) error {
	for _, link := range links {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO output_roll_inputs (output_roll_id, input_roll_id, position) VALUES (?, ?, ?)`,
			link.OutputRollID,
			link.InputRollID,
			link.Position,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*outputrolldomain.OutputRoll, error) {
	var roll outputrolldomain.OutputRoll
	err := db.WithContext(ctx).Raw(`SELECT `+columns+` FROM output_rolls o WHERE o.id = ?`, id).Scan(&roll).Error
	if err != nil {
		return nil, err
	}
	if roll.ID == 0 {
		return nil, nil
	}
	return &roll, nil
}

func (r *repo) CountForDay(ctx context.Context, db *gorm.DB, jobID snowflake.ID, day string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM output_rolls WHERE job_id = ? AND production_day = ?`,
		jobID,
		day,
	).Scan(&count).Error
	return count, err
}

func (r *repo) BatchExists(ctx context.Context, db *gorm.DB, batch string) (bool, error) {
	var found int
	err := db.WithContext(ctx).Raw(
		`SELECT 1 FROM output_rolls WHERE output_batch = ? LIMIT 1`,
		batch,
	).Scan(&found).Error
	return found == 1, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter outputrolldomain.ListFilter) ([]outputrolldomain.OutputRoll, int64, error) {
	var (
		where []string
		args  []any
	)
	if filter.JobID != 0 {
		where = append(where, "o.job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.ShiftID != 0 {
		where = append(where, "j.shift_id = ?")
		args = append(args, filter.ShiftID)
	}
	switch filter.Status {
	case outputrolldomain.StatusPending:
		where = append(where, "o.reconciled_at IS NULL")
	case outputrolldomain.StatusCompleted:
		where = append(where, "o.reconciled_at IS NOT NULL")
	case outputrolldomain.StatusFlagged:
		where = append(where, "(o.flag_reason IS NOT NULL AND o.flag_reason <> '')")
	}
	if filter.ProductionOrder != "" {
		where = append(where, "j.production_order = ?")
		args = append(args, filter.ProductionOrder)
	}
	if filter.BatchContains != "" {
		where = append(where, "o.output_batch LIKE ?")
		args = append(args, "%"+filter.BatchContains+"%")
	}
	if filter.FlagReason != "" {
		where = append(where, "o.flag_reason = ?")
		args = append(args, filter.FlagReason)
	}
	if filter.CreatedBy != "" {
		where = append(where, "o.created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if len(filter.SectionIDs) > 0 {
		where = append(where, "m.section_id IN ?")
		args = append(args, filter.SectionIDs)
	}
	if filter.StartDay != "" {
		where = append(where, "o.production_day >= ?")
		args = append(args, filter.StartDay)
	}
	if filter.EndDay != "" {
		where = append(where, "o.production_day <= ?")
		args = append(args, filter.EndDay)
	}

	from := ` FROM output_rolls o
		JOIN jobs j ON j.id = o.job_id
		JOIN machines m ON m.id = j.machine_id`
	if len(where) > 0 {
		from += " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := db.WithContext(ctx).Raw(`SELECT COUNT(*)`+from, args...).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + from + ` ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)

	var items []outputrolldomain.OutputRoll
	if err := db.WithContext(ctx).Raw(query, pageArgs...).Scan(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repo) ListLineage(ctx context.Context, db *gorm.DB, outputRollID snowflake.ID) ([]outputrolldomain.LineageEntry, error) {
	var items []outputrolldomain.LineageEntry
	err := db.WithContext(ctx).Raw(
		`SELECT l.input_roll_id, l.position, ir.batch, ir.material_number
		 FROM output_roll_inputs l
		 JOIN input_rolls ir ON ir.id = l.input_roll_id
		 WHERE l.output_roll_id = ?
		 ORDER BY l.position ASC`,
		outputRollID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ApplyReconciliation(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	meter decimal.Decimal,
	weight decimal.Decimal,
	updatedBy string,
	at time.Time,
) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE output_rolls
		 SET final_meter = ?, final_weight = ?, updated_by = ?, reconciled_at = ?, updated_at = ?
		 WHERE id = ? AND reconciled_at IS NULL`,
		meter,
		weight,
		updatedBy,
		at,
		at,
		id,
	)
	return result.RowsAffected, result.Error
}
