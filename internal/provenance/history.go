package provenance

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type history struct{}

// NewHistory reads previous output rolls straight from output_rolls.
func NewHistory() History {
	return &history{}
}

func (h *history) PreviousInputBatch(ctx context.Context, tx *gorm.DB, jobID snowflake.ID) (string, bool, error) {
	var batches []string
	err := tx.WithContext(ctx).Raw(
		`SELECT ir.batch
		 FROM output_rolls o
		 JOIN input_rolls ir ON ir.id = o.input_roll_id
		 WHERE o.job_id = ?
		 ORDER BY o.created_at DESC, o.id DESC
		 LIMIT 1`,
		jobID,
	).Scan(&batches).Error
	if err != nil {
		return "", false, err
	}
	if len(batches) == 0 {
		return "", false, nil
	}
	return batches[0], true, nil
}
