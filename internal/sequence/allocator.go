package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/pkg/db"
	"gorm.io/gorm"
)

// RollSequence holds the last roll number issued for a job on one
// production day.
type RollSequence struct {
	JobID         snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ProductionDay string       `gorm:"primaryKey;type:varchar(10)"`
	LastValue     int64        `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (RollSequence) TableName() string { return "roll_sequences" }

// ErrConflict means another writer advanced the sequence first. The caller
// should roll back and retry.
var ErrConflict = errors.New("roll_sequence_conflict")

// SeedFunc returns the number of rolls that already exist for the
// (job, day) before the sequence row is created.
type SeedFunc func(ctx context.Context, tx *gorm.DB) (int64, error)

type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next allocates the next roll number for (jobID, day) inside tx using a
// compare-and-swap on roll_sequences.
func (a *Allocator) Next(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, day string, now time.Time, seed SeedFunc) (int64, error) {
	var current RollSequence
	err := tx.WithContext(ctx).Raw(
		`SELECT job_id, production_day, last_value, updated_at
		 FROM roll_sequences WHERE job_id = ? AND production_day = ?`,
		jobID,
		day,
	).Scan(&current).Error
	if err != nil {
		return 0, db.Wrap("roll_sequence.get", err)
	}

	if current.JobID == 0 {
		base := int64(0)
		if seed != nil {
			base, err = seed(ctx, tx)
			if err != nil {
				return 0, err
			}
		}
		next := base + 1
		err = tx.WithContext(ctx).Exec(
			`INSERT INTO roll_sequences (job_id, production_day, last_value, updated_at) VALUES (?, ?, ?, ?)`,
			jobID,
			day,
			next,
			now,
		).Error
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return 0, ErrConflict
			}
			return 0, db.Wrap("roll_sequence.insert", err)
		}
		return next, nil
	}

	next := current.LastValue + 1
	result := tx.WithContext(ctx).Exec(
		`UPDATE roll_sequences SET last_value = ?, updated_at = ?
		 WHERE job_id = ? AND production_day = ? AND last_value = ?`,
		next,
		now,
		jobID,
		day,
		current.LastValue,
	)
	if result.Error != nil {
		return 0, db.Wrap("roll_sequence.update", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, ErrConflict
	}
	return next, nil
}

// Advance moves the sequence from the number Next just issued to a higher
// one, used when the issued number's batch code is already taken.
func (a *Allocator) Advance(ctx context.Context, tx *gorm.DB, jobID snowflake.ID, day string, from, to int64, now time.Time) error {
	if to <= from {
		return nil
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE roll_sequences SET last_value = ?, updated_at = ?
		 WHERE job_id = ? AND production_day = ? AND last_value = ?`,
		to,
		now,
		jobID,
		day,
		from,
	)
	if result.Error != nil {
		return db.Wrap("roll_sequence.advance", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
