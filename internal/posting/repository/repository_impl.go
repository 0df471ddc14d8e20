package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() postingdomain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, idempotency_key, kind, reference_type, reference_id, status,
	document_number, error_message, request, attempted_at, completed_at
	FROM erp_postings`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *postingdomain.Posting) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO erp_postings (id, idempotency_key, kind, reference_type, reference_id, status, request, attempted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.IdempotencyKey,
		p.Kind,
		p.ReferenceType,
		p.ReferenceID,
		p.Status,
		p.Request,
		p.AttemptedAt,
	).Error
}

func (r *repo) Complete(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	status postingdomain.Status,
	document, errorMessage *string,
	at time.Time,
) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE erp_postings
		 SET status = ?, document_number = ?, error_message = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		document,
		errorMessage,
		at,
		id,
		postingdomain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*postingdomain.Posting, error) {
	var p postingdomain.Posting
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*postingdomain.Posting, error) {
	var p postingdomain.Posting
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE idempotency_key = ?`, key).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter postingdomain.ListFilter) ([]postingdomain.Posting, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ReferenceType != "" {
		where = append(where, "reference_type = ?")
		args = append(args, filter.ReferenceType)
	}
	if filter.ReferenceID != 0 {
		where = append(where, "reference_id = ?")
		args = append(args, filter.ReferenceID)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY attempted_at DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

	var items []postingdomain.Posting
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]postingdomain.Posting, error) {
	var items []postingdomain.Posting
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE status = ? AND attempted_at < ? ORDER BY attempted_at ASC, id ASC LIMIT ?`,
		postingdomain.StatusPending,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
