package floormetrics_test

import (
	"context"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/millroll/internal/floormetrics"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	"github.com/smallbiznis/millroll/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRefreshCountsFloorState(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t, time.Date(2025, 1, 10, 8, 0, 0, 0, testutil.PlantZone))
	m := testutil.SeedMachine(t, s.DB, s.Node, "Slitter 2", "M2")
	c := floormetrics.NewCollector(s.DB, s.Clock, s.Plant)

	require.NoError(t, c.Refresh(ctx))
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)

	open, err := s.Jobs.Open(ctx, jobdomain.OpenRequest{
		MachineID:       m.ID.String(),
		ShiftID:         1,
		ProductionOrder: "PO-1001",
		Batch:           "A1",
		MaterialNumber:  "MAT-01",
		StartWeight:     decimal.RequireFromString("500"),
		CreatedBy:       "op-1",
	})
	require.NoError(t, err)

	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, 1, int(gauge(t, c, "millroll_jobs_active")))
	assert.Equal(t, 1, int(gauge(t, c, "millroll_input_rolls_unconsumed")))
	assert.Zero(t, gauge(t, c, "millroll_output_rolls_today"))

	_, err = s.OutputRolls.Create(ctx, outputrolldomain.CreateRequest{
		JobID:        open.Job.ID.String(),
		InputRollID:  open.InputRoll.ID.String(),
		NominalMeter: decimal.RequireFromString("1000"),
		CoreWeight:   decimal.RequireFromString("2"),
		CreatedBy:    "op-1",
	})
	require.NoError(t, err)

	require.NoError(t, c.Refresh(ctx))
	assert.Zero(t, gauge(t, c, "millroll_input_rolls_unconsumed"))
	assert.Equal(t, 1, int(gauge(t, c, "millroll_output_rolls_today")))
	assert.Equal(t, 1, int(gauge(t, c, "millroll_output_rolls_unreconciled")))

	s.Clock.Advance(24 * time.Hour)
	require.NoError(t, c.Refresh(ctx))
	assert.Zero(t, gauge(t, c, "millroll_output_rolls_today"))
}

func TestRefreshReportsEveryPostingStatus(t *testing.T) {
	s := testutil.NewStack(t, time.Now())
	c := floormetrics.NewCollector(s.DB, s.Clock, s.Plant)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 4, promtestutil.CollectAndCount(c.Registry(), "millroll_erp_postings"))
}

func gauge(t *testing.T, c *floormetrics.Collector, name string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

type recordingSink struct {
	sent []floormetrics.Snapshot
}

func (r *recordingSink) Send(_ context.Context, snap floormetrics.Snapshot) error {
	r.sent = append(r.sent, snap)
	return nil
}

func TestWorkerResendsLastSnapshotWhenRefreshFails(t *testing.T) {
	start := time.Date(2025, 1, 10, 8, 0, 0, 0, testutil.PlantZone)
	s := testutil.NewStack(t, start)
	testutil.SeedMachine(t, s.DB, s.Node, "Slitter 2", "M2")
	c := floormetrics.NewCollector(s.DB, s.Clock, s.Plant)
	sink := &recordingSink{}
	w := floormetrics.NewWorker(c, sink, 0, zap.NewNop())

	require.NoError(t, w.PushOnce(context.Background()))

	sqlDB, err := s.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	s.Clock.Advance(time.Minute)

	require.NoError(t, w.PushOnce(context.Background()))
	require.Len(t, sink.sent, 2)
	assert.Equal(t, sink.sent[0], sink.sent[1])
	assert.True(t, sink.sent[1].TakenAt.Equal(start))
	assert.Equal(t, "A710", sink.sent[1].Plant)
}

func TestLastIsEmptyBeforeFirstRefresh(t *testing.T) {
	s := testutil.NewStack(t, time.Now())
	c := floormetrics.NewCollector(s.DB, s.Clock, s.Plant)
	assert.True(t, c.Last().Empty())

	require.NoError(t, c.Refresh(context.Background()))
	assert.False(t, c.Last().Empty())
}

func TestOutputRollsTodayIsPerMachine(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t, time.Date(2025, 1, 10, 8, 0, 0, 0, testutil.PlantZone))
	testutil.SeedMachine(t, s.DB, s.Node, "Slitter 1", "M1")
	testutil.SeedMachine(t, s.DB, s.Node, "Slitter 2", "M2")
	c := floormetrics.NewCollector(s.DB, s.Clock, s.Plant)

	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, 2, promtestutil.CollectAndCount(c.Registry(), "millroll_output_rolls_today"))
}
