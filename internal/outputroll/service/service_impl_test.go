package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/millroll/internal/erp"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/smallbiznis/millroll/internal/sequence"
	"github.com/smallbiznis/millroll/internal/testutil"
	"github.com/smallbiznis/millroll/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 10 January 2025 is day 10, so shift 1 of 2 is shift number 19.
var shiftStart = time.Date(2025, 1, 10, 8, 0, 0, 0, testutil.PlantZone)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fixture struct {
	*testutil.Stack
	open *jobdomain.OpenResponse
}

func newFixture(t *testing.T, shiftID int) *fixture {
	t.Helper()
	s := testutil.NewStack(t, shiftStart)
	m := testutil.SeedMachine(t, s.DB, s.Node, "Slitter 2", "M2")

	open, err := s.Jobs.Open(context.Background(), jobdomain.OpenRequest{
		MachineID:       m.ID.String(),
		ShiftID:         shiftID,
		ProductionOrder: "PO-1001",
		Batch:           "A1",
		MaterialNumber:  "MAT-01",
		StartWeight:     d("500"),
		StartMeter:      d("2000"),
		CreatedBy:       "op-1",
	})
	require.NoError(t, err)
	return &fixture{Stack: s, open: open}
}

func (f *fixture) create(t *testing.T, input inputrolldomain.InputRoll) *outputrolldomain.Detail {
	t.Helper()
	out, err := f.OutputRolls.Create(context.Background(), outputrolldomain.CreateRequest{
		JobID:        f.open.Job.ID.String(),
		InputRollID:  input.ID.String(),
		NominalMeter: d("1000"),
		CoreWeight:   d("2"),
		CreatedBy:    "op-1",
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) addInput(t *testing.T, batch string) inputrolldomain.InputRoll {
	t.Helper()
	roll, err := f.InputRolls.Create(context.Background(), inputrolldomain.CreateRequest{
		JobID:          f.open.Job.ID.String(),
		Batch:          batch,
		MaterialNumber: "MAT-01",
		StartWeight:    d("500"),
		CreatedBy:      "op-1",
	})
	require.NoError(t, err)
	return *roll
}

func TestCreateFirstRollOfShift(t *testing.T) {
	f := newFixture(t, 1)

	out := f.create(t, f.open.InputRoll)
	assert.Equal(t, "25019M2001", out.OutputBatch)
	assert.Equal(t, "A1", out.FromInputBatch)
	assert.Equal(t, "2025-01-10", out.ProductionDay)
	assert.True(t, out.FinalWeight.IsZero())
	assert.Nil(t, out.ReconciledAt)
	require.Len(t, out.Lineage, 1)
	assert.Equal(t, "A1", out.Lineage[0].Batch)
	assert.Equal(t, 1, out.Lineage[0].Position)

	input, err := f.InputRolls.Get(context.Background(), f.open.InputRoll.ID)
	require.NoError(t, err)
	assert.True(t, input.IsConsumed)
	assert.NotNil(t, input.ConsumedAt)
}

func TestCreateSecondShiftNumber(t *testing.T) {
	f := newFixture(t, 2)

	out := f.create(t, f.open.InputRoll)
	assert.Equal(t, "25020M2001", out.OutputBatch)
}

func TestCreateNumbersRollsSequentially(t *testing.T) {
	f := newFixture(t, 1)

	seen := map[string]bool{}
	for i, want := range []string{"25019M2001", "25019M2002", "25019M2003"} {
		out := f.create(t, f.open.InputRoll)
		assert.Equal(t, want, out.OutputBatch, "roll %d", i+1)
		assert.False(t, seen[out.OutputBatch])
		seen[out.OutputBatch] = true
	}
}

func TestCreateConcurrentRollsOnOneJobGetDistinctNumbers(t *testing.T) {
	f := newFixture(t, 1)
	const n = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches []string
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.OutputRolls.Create(context.Background(), outputrolldomain.CreateRequest{
				JobID:        f.open.Job.ID.String(),
				InputRollID:  f.open.InputRoll.ID.String(),
				NominalMeter: d("1000"),
				CoreWeight:   d("2"),
				CreatedBy:    "op-1",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			batches = append(batches, out.OutputBatch)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	want := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		want = append(want, fmt.Sprintf("25019M2%03d", i))
	}
	assert.ElementsMatch(t, want, batches)
}

func TestCreateSkipsCodeHeldByAnotherJobOnSameMachine(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first := f.create(t, f.open.InputRoll)
	require.Equal(t, "25019M2001", first.OutputBatch)

	second, err := f.Jobs.Open(ctx, jobdomain.OpenRequest{
		MachineID:       f.open.Job.MachineID.String(),
		ShiftID:         1,
		ProductionOrder: "PO-2002",
		Batch:           "Z9",
		MaterialNumber:  "MAT-02",
		StartWeight:     d("400"),
		CreatedBy:       "op-2",
	})
	require.NoError(t, err)

	createFor := func(open *jobdomain.OpenResponse) *outputrolldomain.Detail {
		out, err := f.OutputRolls.Create(ctx, outputrolldomain.CreateRequest{
			JobID:        open.Job.ID.String(),
			InputRollID:  open.InputRoll.ID.String(),
			NominalMeter: d("1000"),
			CoreWeight:   d("2"),
			CreatedBy:    "op-2",
		})
		require.NoError(t, err)
		return out
	}

	out := createFor(second)
	assert.Equal(t, "25019M2002", out.OutputBatch)
	assert.Equal(t, "Z9", out.FromInputBatch)

	var seq sequence.RollSequence
	require.NoError(t, f.DB.Where("job_id = ? AND production_day = ?", second.Job.ID, "2025-01-10").First(&seq).Error)
	assert.Equal(t, int64(2), seq.LastValue)

	// Job 1's own sequence is at 1; its next number 2 is now taken as well.
	again := createFor(f.open)
	assert.Equal(t, "25019M2003", again.OutputBatch)
	assert.Equal(t, "25019M2004", createFor(second).OutputBatch)
}

func TestCreateStopsAfterLastThreeDigitRollNumber(t *testing.T) {
	f := newFixture(t, 1)

	require.NoError(t, f.DB.Create(&sequence.RollSequence{
		JobID:         f.open.Job.ID,
		ProductionDay: "2025-01-10",
		LastValue:     sequence.MaxRollNumber,
		UpdatedAt:     shiftStart.UTC(),
	}).Error)

	_, err := f.OutputRolls.Create(context.Background(), outputrolldomain.CreateRequest{
		JobID:       f.open.Job.ID.String(),
		InputRollID: f.open.InputRoll.ID.String(),
	})
	assert.ErrorIs(t, err, sequence.ErrRollNumberRange)

	var count int64
	require.NoError(t, f.DB.Model(&outputrolldomain.OutputRoll{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateReusedInputKeepsConsumedAt(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.create(t, f.open.InputRoll)
	first, err := f.InputRolls.Get(ctx, f.open.InputRoll.ID)
	require.NoError(t, err)

	f.Clock.Advance(time.Hour)
	out := f.create(t, f.open.InputRoll)
	assert.Equal(t, "A1", out.FromInputBatch)

	again, err := f.InputRolls.Get(ctx, f.open.InputRoll.ID)
	require.NoError(t, err)
	assert.True(t, first.ConsumedAt.Equal(*again.ConsumedAt))
}

func TestCreateAttributesAllUnconsumedInputs(t *testing.T) {
	f := newFixture(t, 1)

	f.create(t, f.open.InputRoll)
	b1 := f.addInput(t, "B1")
	c1 := f.addInput(t, "C1")

	out := f.create(t, c1)
	assert.Equal(t, "A1, B1, C1", out.FromInputBatch)
	require.Len(t, out.Lineage, 2)
	assert.Equal(t, b1.ID, out.Lineage[0].InputRollID)
	assert.Equal(t, c1.ID, out.Lineage[1].InputRollID)

	b, err := f.InputRolls.Get(context.Background(), b1.ID)
	require.NoError(t, err)
	assert.True(t, b.IsConsumed)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	job := f.open.Job.ID.String()
	input := f.open.InputRoll.ID.String()

	cases := []struct {
		name string
		req  outputrolldomain.CreateRequest
		want error
	}{
		{name: "job", req: outputrolldomain.CreateRequest{JobID: "x", InputRollID: input}, want: outputrolldomain.ErrInvalidJob},
		{name: "input", req: outputrolldomain.CreateRequest{JobID: job}, want: outputrolldomain.ErrInvalidInputRoll},
		{name: "meter", req: outputrolldomain.CreateRequest{JobID: job, InputRollID: input, NominalMeter: d("-1")}, want: outputrolldomain.ErrInvalidMeter},
		{name: "core", req: outputrolldomain.CreateRequest{JobID: job, InputRollID: input, CoreWeight: d("-1")}, want: outputrolldomain.ErrInvalidCoreWeight},
		{name: "flag count", req: outputrolldomain.CreateRequest{JobID: job, InputRollID: input, FlagCount: -1}, want: outputrolldomain.ErrInvalidFlagCount},
		{name: "unknown job", req: outputrolldomain.CreateRequest{JobID: "12345", InputRollID: input}, want: jobdomain.ErrNotFound},
		{name: "unknown input", req: outputrolldomain.CreateRequest{JobID: job, InputRollID: "12345"}, want: inputrolldomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.OutputRolls.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateRejectsInputFromAnotherJob(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	other, err := f.Jobs.Open(ctx, jobdomain.OpenRequest{
		MachineID:       f.open.Job.MachineID.String(),
		ShiftID:         1,
		ProductionOrder: "PO-2002",
		Batch:           "Z9",
		MaterialNumber:  "MAT-02",
	})
	require.NoError(t, err)

	_, err = f.OutputRolls.Create(ctx, outputrolldomain.CreateRequest{
		JobID:       f.open.Job.ID.String(),
		InputRollID: other.InputRoll.ID.String(),
	})
	assert.ErrorIs(t, err, outputrolldomain.ErrInputRollMismatch)
}

func TestCreateRejectsEndedJob(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	rows, err := f.JobRepo.MarkEnded(ctx, f.DB, f.open.Job.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	_, err = f.OutputRolls.Create(ctx, outputrolldomain.CreateRequest{
		JobID:       f.open.Job.ID.String(),
		InputRollID: f.open.InputRoll.ID.String(),
	})
	assert.ErrorIs(t, err, jobdomain.ErrJobEnded)
}

func TestApplyFinalWeightReconcilesAfterERPAccepts(t *testing.T) {
	f := newFixture(t, 1)
	out := f.create(t, f.open.InputRoll)

	f.ERP.On("PostRoll", mock.Anything, mock.MatchedBy(func(r erp.RollReceipt) bool {
		return r.Batch == out.OutputBatch &&
			r.ProductionOrder == "PO-1001" &&
			r.NetWeight.Equal(d("250.5")) &&
			r.CorrectedMeter.Equal(d("999.5")) &&
			len(r.IdempotencyKey) == 26
	})).Return(nil).Once()

	got, err := f.OutputRolls.ApplyFinalWeight(context.Background(), outputrolldomain.FinalWeightRequest{
		OutputRollID: out.ID,
		RawWeight:    d("252.5"),
		UpdatedBy:    "qc-1",
	})
	require.NoError(t, err)
	f.ERP.AssertExpectations(t)

	assert.True(t, got.FinalMeter.Equal(d("999.5")))
	assert.True(t, got.FinalWeight.Equal(d("250.5")))
	assert.NotNil(t, got.ReconciledAt)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, "qc-1", *got.UpdatedBy)

	postings, err := f.Postings.List(context.Background(), postingdomain.ListRequest{ReferenceType: outputrolldomain.ReferenceType})
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, postingdomain.StatusSucceeded, postings[0].Status)
	assert.Equal(t, out.OutputBatch, *postings[0].DocumentNumber)
}

func TestApplyFinalWeightRejectedLeavesRollUnchanged(t *testing.T) {
	f := newFixture(t, 1)
	out := f.create(t, f.open.InputRoll)

	rejected := &erp.PostingError{Kind: erp.KindHTTP, StatusCode: 500, Message: "internal"}
	f.ERP.On("PostRoll", mock.Anything, mock.Anything).Return(rejected).Once()

	_, err := f.OutputRolls.ApplyFinalWeight(context.Background(), outputrolldomain.FinalWeightRequest{
		OutputRollID: out.ID,
		RawWeight:    d("252.5"),
	})
	require.ErrorIs(t, err, rejected)

	got, err := f.OutputRolls.Get(context.Background(), out.ID)
	require.NoError(t, err)
	assert.True(t, got.FinalMeter.Equal(d("1000")))
	assert.True(t, got.FinalWeight.IsZero())
	assert.Nil(t, got.ReconciledAt)
}

func TestApplyFinalWeightOnlyOnce(t *testing.T) {
	f := newFixture(t, 1)
	out := f.create(t, f.open.InputRoll)
	ctx := context.Background()

	f.ERP.On("PostRoll", mock.Anything, mock.Anything).Return(nil)
	req := outputrolldomain.FinalWeightRequest{OutputRollID: out.ID, RawWeight: d("252.5")}

	_, err := f.OutputRolls.ApplyFinalWeight(ctx, req)
	require.NoError(t, err)
	_, err = f.OutputRolls.ApplyFinalWeight(ctx, req)
	assert.ErrorIs(t, err, outputrolldomain.ErrAlreadyReconciled)
	f.ERP.AssertNumberOfCalls(t, "PostRoll", 1)
}

func TestApplyFinalWeightValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.OutputRolls.ApplyFinalWeight(ctx, outputrolldomain.FinalWeightRequest{OutputRollID: 1, RawWeight: d("-1")})
	assert.ErrorIs(t, err, outputrolldomain.ErrInvalidWeight)

	_, err = f.OutputRolls.ApplyFinalWeight(ctx, outputrolldomain.FinalWeightRequest{OutputRollID: 1, RawWeight: d("10")})
	assert.ErrorIs(t, err, outputrolldomain.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first := f.create(t, f.open.InputRoll)
	f.create(t, f.open.InputRoll)
	_, err := f.OutputRolls.Create(ctx, outputrolldomain.CreateRequest{
		JobID:        f.open.Job.ID.String(),
		InputRollID:  f.open.InputRoll.ID.String(),
		NominalMeter: d("800"),
		FlagReason:   "wrinkle",
		FlagCount:    2,
		CreatedBy:    "op-2",
	})
	require.NoError(t, err)

	f.ERP.On("PostRoll", mock.Anything, mock.Anything).Return(nil)
	_, err = f.OutputRolls.ApplyFinalWeight(ctx, outputrolldomain.FinalWeightRequest{OutputRollID: first.ID, RawWeight: d("252.5")})
	require.NoError(t, err)

	list := func(req outputrolldomain.ListRequest) *outputrolldomain.ListResponse {
		t.Helper()
		res, err := f.OutputRolls.List(ctx, req)
		require.NoError(t, err)
		return res
	}

	all := list(outputrolldomain.ListRequest{JobID: f.open.Job.ID.String()})
	assert.Equal(t, int64(3), all.PageInfo.Total)
	require.Len(t, all.Items, 3)
	assert.Equal(t, "25019M2003", all.Items[0].OutputBatch)

	assert.Equal(t, int64(1), list(outputrolldomain.ListRequest{Status: "completed"}).PageInfo.Total)
	assert.Equal(t, int64(2), list(outputrolldomain.ListRequest{Status: "pending"}).PageInfo.Total)
	assert.Equal(t, int64(1), list(outputrolldomain.ListRequest{Status: "flagged"}).PageInfo.Total)
	assert.Equal(t, int64(1), list(outputrolldomain.ListRequest{FlagReason: "wrinkle"}).PageInfo.Total)
	assert.Equal(t, int64(1), list(outputrolldomain.ListRequest{CreatedBy: "op-2"}).PageInfo.Total)
	assert.Equal(t, int64(1), list(outputrolldomain.ListRequest{OutputBatch: "M2002"}).PageInfo.Total)
	assert.Equal(t, int64(3), list(outputrolldomain.ListRequest{ProductionOrder: "PO-1001", SectionIDs: []string{"1,2"}}).PageInfo.Total)
	assert.Equal(t, int64(0), list(outputrolldomain.ListRequest{SectionIDs: []string{"9"}}).PageInfo.Total)
	assert.Equal(t, int64(3), list(outputrolldomain.ListRequest{StartDate: "2025-01-10", EndDate: "2025-01-10"}).PageInfo.Total)
	assert.Equal(t, int64(0), list(outputrolldomain.ListRequest{StartDate: "2025-01-11"}).PageInfo.Total)
	assert.Equal(t, int64(3), list(outputrolldomain.ListRequest{ShiftID: "1"}).PageInfo.Total)

	page := list(outputrolldomain.ListRequest{Pagination: pagination.Pagination{Page: 1, PerPage: 2}})
	assert.Len(t, page.Items, 2)
	assert.True(t, page.PageInfo.HasMore)

	_, err = f.OutputRolls.List(ctx, outputrolldomain.ListRequest{Status: "lost"})
	assert.ErrorIs(t, err, outputrolldomain.ErrInvalidStatus)
	_, err = f.OutputRolls.List(ctx, outputrolldomain.ListRequest{StartDate: "10/01/2025"})
	assert.ErrorIs(t, err, outputrolldomain.ErrInvalidFilter)
}
