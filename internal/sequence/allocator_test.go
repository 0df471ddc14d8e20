package sequence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/sequence"
	"github.com/smallbiznis/millroll/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAllocatorCountsUpPerJobDay(t *testing.T) {
	conn := testutil.OpenDB(t)
	alloc := sequence.NewAllocator()
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC)
	job := snowflake.ID(42)

	for want := int64(1); want <= 3; want++ {
		got, err := alloc.Next(ctx, conn, job, "2025-01-10", now, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := alloc.Next(ctx, conn, job, "2025-01-11", now, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = alloc.Next(ctx, conn, snowflake.ID(43), "2025-01-10", now, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestAllocatorSeedsFromExistingRolls(t *testing.T) {
	conn := testutil.OpenDB(t)
	alloc := sequence.NewAllocator()
	ctx := context.Background()
	now := time.Now().UTC()

	calls := 0
	seed := func(context.Context, *gorm.DB) (int64, error) {
		calls++
		return 4, nil
	}

	got, err := alloc.Next(ctx, conn, snowflake.ID(7), "2025-01-10", now, seed)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = alloc.Next(ctx, conn, snowflake.ID(7), "2025-01-10", now, seed)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
	assert.Equal(t, 1, calls)
}

func TestAllocatorSeedError(t *testing.T) {
	conn := testutil.OpenDB(t)
	boom := errors.New("boom")

	_, err := sequence.NewAllocator().Next(context.Background(), conn, snowflake.ID(7), "2025-01-10", time.Now(),
		func(context.Context, *gorm.DB) (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestAllocatorConflictWhenRowAppearsConcurrently(t *testing.T) {
	conn := testutil.OpenDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// The seed runs between the read and the insert; writing the row there
	// stands in for a concurrent allocator winning the race.
	seed := func(ctx context.Context, tx *gorm.DB) (int64, error) {
		err := tx.WithContext(ctx).Create(&sequence.RollSequence{
			JobID:         snowflake.ID(9),
			ProductionDay: "2025-01-10",
			LastValue:     1,
			UpdatedAt:     now,
		}).Error
		return 0, err
	}

	_, err := sequence.NewAllocator().Next(ctx, conn, snowflake.ID(9), "2025-01-10", now, seed)
	assert.ErrorIs(t, err, sequence.ErrConflict)
}

func TestAllocatorAdvanceMovesPastTakenNumbers(t *testing.T) {
	conn := testutil.OpenDB(t)
	alloc := sequence.NewAllocator()
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC)
	job := snowflake.ID(11)

	got, err := alloc.Next(ctx, conn, job, "2025-01-10", now, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)

	require.NoError(t, alloc.Advance(ctx, conn, job, "2025-01-10", 1, 3, now))
	got, err = alloc.Next(ctx, conn, job, "2025-01-10", now, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	// The sequence moved on since 1 was issued.
	assert.ErrorIs(t, alloc.Advance(ctx, conn, job, "2025-01-10", 1, 5, now), sequence.ErrConflict)
	assert.NoError(t, alloc.Advance(ctx, conn, job, "2025-01-10", 4, 4, now))
}
