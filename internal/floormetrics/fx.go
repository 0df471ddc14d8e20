package floormetrics

import (
	"context"
	"time"

	"github.com/smallbiznis/millroll/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("floor.metrics",
	fx.Provide(NewCollector),
	fx.Provide(NewSink),
	fx.Invoke(register),
)

// Worker refreshes the collector and sends its snapshot on every tick.
type Worker struct {
	collector *Collector
	sink      Sink
	interval  time.Duration
	log       *zap.Logger
}

func NewWorker(c *Collector, sink Sink, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{collector: c, sink: sink, interval: interval, log: log.Named("floormetrics")}
}

// PushOnce refreshes the collector and sends the latest snapshot. A failed
// refresh still sends the last known values.
func (w *Worker) PushOnce(ctx context.Context) error {
	if err := w.collector.Refresh(ctx); err != nil {
		snap := w.collector.Last()
		w.log.Warn("refresh floor metrics", zap.Time("last_snapshot", snap.TakenAt), zap.Error(err))
	}
	return w.sink.Send(ctx, w.collector.Last())
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.PushOnce(ctx); err != nil {
			w.log.Error("push floor metrics", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			w.log.Info("stopping floor metrics worker")
			return
		}
	}
}

func register(lc fx.Lifecycle, cfg config.Config, c *Collector, sink Sink, log *zap.Logger) {
	if sink == nil {
		return
	}
	w := NewWorker(c, sink, cfg.MetricsPush.Interval, log)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.log.Info("starting floor metrics worker", zap.Duration("interval", w.interval))
			go w.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
