package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Begin(ctx context.Context, req BeginRequest) (*Posting, error)
	// Succeed completes p with the ERP document. tx may be nil.
	Succeed(ctx context.Context, tx *gorm.DB, p *Posting, document string) error
	Fail(ctx context.Context, p *Posting, cause error) error
	// Execute journals call and, only when it succeeds, runs commit in the
	// same transaction that completes the journal row.
	Execute(ctx context.Context, req BeginRequest, call CallFunc, commit CommitFunc) (string, error)
	List(ctx context.Context, req ListRequest) ([]Posting, error)
	SweepPending(ctx context.Context, olderThan time.Duration, limit int) ([]Posting, error)
}

// CallFunc performs the ERP call with the journal's idempotency key.
type CallFunc func(ctx context.Context, idempotencyKey string) (string, error)

// CommitFunc applies the local mutation that depends on a successful call.
type CommitFunc func(tx *gorm.DB, document string) error

type BeginRequest struct {
	Kind          Kind
	ReferenceType string
	ReferenceID   snowflake.ID
	Request       any
}

type ListRequest struct {
	Status        string
	ReferenceType string
	ReferenceID   string
	Limit         int
}

var (
	ErrInvalidKind      = errors.New("invalid_posting_kind")
	ErrInvalidStatus    = errors.New("invalid_posting_status")
	ErrInvalidReference = errors.New("invalid_posting_reference")
	ErrNotPending       = errors.New("posting_not_pending")
)

func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending, StatusSucceeded, StatusFailed, StatusUnknown:
		return Status(value), nil
	default:
		return "", ErrInvalidStatus
	}
}
