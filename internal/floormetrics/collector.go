package floormetrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/config"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/smallbiznis/millroll/pkg/db"
	"gorm.io/gorm"
)

const namespace = "millroll"

var postingStatuses = []postingdomain.Status{
	postingdomain.StatusPending,
	postingdomain.StatusSucceeded,
	postingdomain.StatusFailed,
	postingdomain.StatusUnknown,
}

// Snapshot is the floor state as of the last successful refresh.
type Snapshot struct {
	Plant    string
	TakenAt  time.Time
	Families []*dto.MetricFamily
}

func (s Snapshot) Empty() bool {
	return len(s.Families) == 0
}

// Collector snapshots shop-floor state into a private registry.
type Collector struct {
	db    *gorm.DB
	clock clock.Clock
	plant *config.PlantConfigHolder

	registry         *prometheus.Registry
	jobsActive       prometheus.Gauge
	inputRollsOpen   prometheus.Gauge
	outputRollsToday *prometheus.GaugeVec
	unreconciled     prometheus.Gauge
	postings         *prometheus.GaugeVec

	mu   sync.Mutex
	last Snapshot
}

func NewCollector(conn *gorm.DB, clk clock.Clock, plant *config.PlantConfigHolder) *Collector {
	c := &Collector{
		db:       conn,
		clock:    clk,
		plant:    plant,
		registry: prometheus.NewRegistry(),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Production orders currently running on a machine.",
		}),
		inputRollsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_rolls_unconsumed",
			Help:      "Mounted input rolls not yet consumed by an output roll.",
		}),
		outputRollsToday: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_rolls_today",
			Help:      "Output rolls created on the current production day, per machine label.",
		}, []string{"machine"}),
		unreconciled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_rolls_unreconciled",
			Help:      "Output rolls still waiting for a final weight.",
		}),
		postings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "erp_postings",
			Help:      "ERP posting journal entries by status.",
		}, []string{"status"}),
	}
	c.registry.MustRegister(c.jobsActive, c.inputRollsOpen, c.outputRollsToday, c.unreconciled, c.postings)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Last returns the most recent successful snapshot. It is empty until the
// first refresh succeeds.
func (c *Collector) Last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Refresh recounts every gauge and, when all queries succeed, replaces the
// snapshot. A failed refresh leaves the previous snapshot in place.
func (c *Collector) Refresh(ctx context.Context) error {
	conn := c.db.WithContext(ctx)
	now := c.clock.Now()
	today := clock.Day(now)

	counts := []struct {
		gauge prometheus.Gauge
		op    string
		query string
		args  []any
	}{
		{c.jobsActive, "floormetrics.jobs_active", `SELECT COUNT(*) FROM jobs WHERE end_at IS NULL`, nil},
		{c.inputRollsOpen, "floormetrics.input_rolls_unconsumed", `SELECT COUNT(*) FROM input_rolls WHERE is_consumed = ?`, []any{false}},
		{c.unreconciled, "floormetrics.output_rolls_unreconciled", `SELECT COUNT(*) FROM output_rolls WHERE reconciled_at IS NULL`, nil},
	}
	for _, q := range counts {
		var n int64
		if err := conn.Raw(q.query, q.args...).Scan(&n).Error; err != nil {
			return db.Wrap(q.op, err)
		}
		q.gauge.Set(float64(n))
	}

	var perMachine []struct {
		Label string
		Total int64
	}
	err := conn.Raw(
		`SELECT m.label AS label, COUNT(o.id) AS total
		 FROM machines m
		 LEFT JOIN jobs j ON j.machine_id = m.id
		 LEFT JOIN output_rolls o ON o.job_id = j.id AND o.production_day = ?
		 GROUP BY m.label`,
		today,
	).Scan(&perMachine).Error
	if err != nil {
		return db.Wrap("floormetrics.output_rolls_today", err)
	}
	c.outputRollsToday.Reset()
	for _, r := range perMachine {
		c.outputRollsToday.WithLabelValues(r.Label).Set(float64(r.Total))
	}

	var rows []struct {
		Status string
		Total  int64
	}
	if err := conn.Raw(`SELECT status, COUNT(*) AS total FROM erp_postings GROUP BY status`).Scan(&rows).Error; err != nil {
		return db.Wrap("floormetrics.erp_postings", err)
	}
	for _, s := range postingStatuses {
		c.postings.WithLabelValues(string(s)).Set(0)
	}
	for _, r := range rows {
		c.postings.WithLabelValues(r.Status).Set(float64(r.Total))
	}

	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	snap := Snapshot{TakenAt: now, Families: families}
	if c.plant != nil {
		snap.Plant = c.plant.Get().Plant
	}
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
	return nil
}
