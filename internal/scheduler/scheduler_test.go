package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/millroll/internal/clock"
	obsmetrics "github.com/smallbiznis/millroll/internal/observability/metrics"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakePosting struct {
	mu      sync.Mutex
	batches [][]postingdomain.Posting
	err     error
	calls   []time.Duration
}

func (f *fakePosting) Begin(context.Context, postingdomain.BeginRequest) (*postingdomain.Posting, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePosting) Succeed(context.Context, *gorm.DB, *postingdomain.Posting, string) error {
	return errors.New("not implemented")
}

func (f *fakePosting) Fail(context.Context, *postingdomain.Posting, error) error {
	return errors.New("not implemented")
}

func (f *fakePosting) Execute(context.Context, postingdomain.BeginRequest, postingdomain.CallFunc, postingdomain.CommitFunc) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakePosting) List(context.Context, postingdomain.ListRequest) ([]postingdomain.Posting, error) {
	return nil, nil
}

func (f *fakePosting) SweepPending(_ context.Context, olderThan time.Duration, _ int) ([]postingdomain.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next, nil
}

func newTestScheduler(t *testing.T, posting postingdomain.Service, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2025, 1, 9, 8, 0, 0, 0, time.UTC)),
		Posting: posting,
		Config:  cfg,
	})
	require.NoError(t, err)
	return s
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceDrainsFullBatches(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.PostingWithConfig(obsmetrics.Config{ServiceName: "millroll", Environment: "test"})

	posting := &fakePosting{batches: [][]postingdomain.Posting{
		{{ID: 1}, {ID: 2}},
		{{ID: 3}},
	}}
	s := newTestScheduler(t, posting, Config{BatchSize: 2, PendingAfter: 10 * time.Minute})

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, []time.Duration{10 * time.Minute, 10 * time.Minute}, posting.calls)

	labels := map[string]string{"service": "millroll", "env": "test"}
	require.Equal(t, float64(1), getCounterValue(t, registry, "millroll_posting_sweeper_runs_total", labels))
}

func TestRunOnceReturnsSweepError(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.PostingWithConfig(obsmetrics.Config{ServiceName: "millroll", Environment: "test"})

	posting := &fakePosting{err: errors.New("db down")}
	s := newTestScheduler(t, posting, Config{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), jobPostingSweep)

	labels := map[string]string{"service": "millroll", "env": "test"}
	require.Equal(t, float64(1), getCounterValue(t, registry, "millroll_posting_sweeper_errors_total", labels))
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.PostingWithConfig(obsmetrics.Config{ServiceName: "millroll", Environment: "test"})

	s := newTestScheduler(t, &fakePosting{}, Config{})
	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "millroll", "env": "test"}
	require.Equal(t, float64(1), getCounterValue(t, registry, "millroll_posting_sweeper_errors_total", labels))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, DefaultConfig(), cfg)

	cfg = Config{RunInterval: time.Second, BatchSize: 5}.withDefaults()
	require.Equal(t, time.Second, cfg.RunInterval)
	require.Equal(t, 5, cfg.BatchSize)
	require.Equal(t, DefaultConfig().PendingAfter, cfg.PendingAfter)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetPostingMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetPostingMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
