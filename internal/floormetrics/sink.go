package floormetrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/millroll/internal/config"
	obstracing "github.com/smallbiznis/millroll/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	exporterRemoteWrite = "prometheus_remote_write"
	exporterPushgateway = "prometheus_pushgateway"
	plantLabel          = "plant"
	sendTimeout         = 5 * time.Second
)

// Sink ships a floor snapshot off-site. An empty snapshot is not sent.
type Sink interface {
	Send(ctx context.Context, snap Snapshot) error
}

// NewSink picks the exporter named by METRICS_PUSH_EXPORTER. It returns nil,
// which disables the worker, when push is off or misconfigured.
func NewSink(cfg config.Config, logger *zap.Logger) Sink {
	log := logger.Named("floormetrics")
	exporter := strings.ToLower(strings.TrimSpace(cfg.MetricsPush.Exporter))
	endpoint := strings.TrimSpace(cfg.MetricsPush.Endpoint)
	if exporter == "" {
		return nil
	}
	if endpoint == "" {
		log.Warn("floor metrics disabled: METRICS_PUSH_ENDPOINT is empty", zap.String("exporter", exporter))
		return nil
	}

	switch exporter {
	case exporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			log.Warn("floor metrics disabled: invalid METRICS_PUSH_ENDPOINT", zap.Error(err))
			return nil
		}
		return newRemoteWriteSink(endpoint, cfg.MetricsPush.AuthToken)
	case exporterPushgateway:
		job := strings.TrimSpace(cfg.AppName)
		if job == "" {
			log.Warn("floor metrics disabled: APP_SERVICE is empty")
			return nil
		}
		return &pushgatewaySink{endpoint: endpoint, job: job, environment: strings.TrimSpace(cfg.Environment)}
	default:
		log.Warn("floor metrics disabled: unknown exporter", zap.String("exporter", exporter))
		return nil
	}
}

type remoteWriteSink struct {
	endpoint string
	token    string
	client   *http.Client
}

func newRemoteWriteSink(endpoint, token string) *remoteWriteSink {
	return &remoteWriteSink{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		client:   obstracing.WrapHTTPClient(&http.Client{Timeout: sendTimeout}, "floor_metrics"),
	}
}

// Send stamps every sample with the snapshot time, so a resend after a
// failed refresh repeats the last known values rather than passing them off
// as current.
func (s *remoteWriteSink) Send(ctx context.Context, snap Snapshot) error {
	if snap.Empty() {
		return nil
	}
	req := prompb.WriteRequest{Timeseries: floorSeries(snap)}
	payload, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("encode floor snapshot: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write: %s", resp.Status)
	}
	return nil
}

// floorSeries flattens the gauge families into one series per label set,
// tagged with the plant.
func floorSeries(snap Snapshot) []prompb.TimeSeries {
	ts := snap.TakenAt.UnixMilli()
	var out []prompb.TimeSeries
	for _, family := range snap.Families {
		if family.GetType() != dto.MetricType_GAUGE {
			continue
		}
		for _, m := range family.GetMetric() {
			if m.GetGauge() == nil {
				continue
			}
			labels := []prompb.Label{{Name: "__name__", Value: family.GetName()}}
			if snap.Plant != "" {
				labels = append(labels, prompb.Label{Name: plantLabel, Value: snap.Plant})
			}
			for _, l := range m.GetLabel() {
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}
			sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
			out = append(out, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: m.GetGauge().GetValue(), Timestamp: ts}},
			})
		}
	}
	return out
}

// pushgatewaySink replaces the group job/<app>/plant/<plant>/environment/<env>.
type pushgatewaySink struct {
	endpoint    string
	job         string
	environment string
}

func (s *pushgatewaySink) Send(ctx context.Context, snap Snapshot) error {
	if snap.Empty() {
		return nil
	}
	frozen := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		return snap.Families, nil
	})
	p := push.New(s.endpoint, s.job).Gatherer(frozen)
	if snap.Plant != "" {
		p = p.Grouping(plantLabel, snap.Plant)
	}
	if s.environment != "" {
		p = p.Grouping("environment", s.environment)
	}
	return p.PushContext(ctx)
}
