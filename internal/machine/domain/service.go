package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service is the read side of the machine lookup table.
type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Machine, error)
	Label(ctx context.Context, id snowflake.ID) (string, error)
	List(ctx context.Context) ([]Machine, error)
}

var (
	ErrNotFound     = errors.New("machine_not_found")
	ErrMissingLabel = errors.New("machine_label_missing")
)
