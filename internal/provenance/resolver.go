// Package provenance derives the "from input batch" attribution of an output
// roll and consumes the input rolls it draws from.
package provenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Separator joins batches in the provenance string.
const Separator = ", "

// ResolutionError reports a storage failure while resolving provenance.
// The surrounding creation must abort.
type ResolutionError struct {
	Op  string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("provenance %s: %v", e.Op, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// History looks up the previous output roll of a job.
type History interface {
	// PreviousInputBatch returns the batch of the input roll linked to the
	// most recently created output roll of the job.
	PreviousInputBatch(ctx context.Context, tx *gorm.DB, jobID snowflake.ID) (string, bool, error)
}

// Result is the resolved attribution. InputRollIDs is ascending and holds
// the rolls consumed by this resolution, current roll included.
type Result struct {
	FromInputBatch string
	InputRollIDs   []snowflake.ID
	Consumed       bool
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Ledger  inputrolldomain.Service
	History History
}

type Resolver struct {
	log     *zap.Logger
	ledger  inputrolldomain.Ledger
	history History
}

func New(p Params) *Resolver {
	return NewResolver(p.Log, p.Ledger, p.History)
}

func NewResolver(log *zap.Logger, ledger inputrolldomain.Ledger, history History) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("provenance"), ledger: ledger, history: history}
}

// Resolve runs inside tx. When the current roll is still unconsumed every
// unconsumed roll of the job is attributed and marked consumed at now;
// otherwise only the current batch is attributed and nothing changes.
func (r *Resolver) Resolve(
	ctx context.Context,
	tx *gorm.DB,
	jobID snowflake.ID,
	current inputrolldomain.InputRoll,
	now time.Time,
) (*Result, error) {
	unconsumed, err := r.ledger.UnconsumedFor(ctx, tx, jobID)
	if err != nil {
		return nil, &ResolutionError{Op: "list_unconsumed", Err: err}
	}

	currentIsUnconsumed := false
	for _, roll := range unconsumed {
		if roll.Batch == current.Batch {
			currentIsUnconsumed = true
			break
		}
	}

	prevBatch, hasPrev, err := r.history.PreviousInputBatch(ctx, tx, jobID)
	if err != nil {
		return nil, &ResolutionError{Op: "previous_output", Err: err}
	}

	if !currentIsUnconsumed {
		return &Result{
			FromInputBatch: current.Batch,
			InputRollIDs:   []snowflake.ID{current.ID},
		}, nil
	}

	batches := make([]string, 0, len(unconsumed)+1)
	if hasPrev {
		batches = append(batches, prevBatch)
	}
	ids := make([]snowflake.ID, 0, len(unconsumed)+1)
	for _, roll := range unconsumed {
		batches = append(batches, roll.Batch)
		ids = append(ids, roll.ID)
	}
	ids = append(ids, current.ID)
	ids = sortUnique(ids)

	if err := r.ledger.MarkConsumed(ctx, tx, jobID, ids, now); err != nil {
		return nil, &ResolutionError{Op: "mark_consumed", Err: err}
	}

	res := &Result{
		FromInputBatch: strings.Join(batches, Separator),
		InputRollIDs:   ids,
		Consumed:       true,
	}
	r.log.Debug("provenance resolved",
		zap.String("job_id", jobID.String()),
		zap.String("from_input_batch", res.FromInputBatch),
		zap.Int("consumed", len(ids)),
	)
	return res, nil
}

func sortUnique(ids []snowflake.ID) []snowflake.ID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}
