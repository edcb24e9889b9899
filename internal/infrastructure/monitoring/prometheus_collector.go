// Package monitoring exposes process-wide forwarding metrics on /metrics,
// relabelled from mesh/P2P business metrics to the publish/subscribe/
// cascade counters this engine actually produces.
package monitoring

import (
	"live777go/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes the Prometheus metrics this node records.
type Collector struct {
	streamsActiveTotal prometheus.Gauge
	sessionsTotal      prometheus.Counter
	negotiationFailed  *prometheus.CounterVec

	streamPublishers  *prometheus.GaugeVec
	streamSubscribers *prometheus.GaugeVec
	streamCascades    *prometheus.GaugeVec
}

func NewPrometheusCollector() *Collector {
	return &Collector{
		streamsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "live777go_streams_active_total",
			Help: "Total number of registered streams",
		}),

		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "live777go_sessions_total",
			Help: "Total number of publish/subscribe sessions negotiated",
		}),

		negotiationFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "live777go_negotiation_failed_total",
			Help: "Total number of failed offer/answer negotiations by error code",
		}, []string{"code"}),

		streamPublishers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "live777go_stream_publishers",
			Help: "Publisher count per stream (0 or 1)",
		}, []string{"stream_id"}),

		streamSubscribers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "live777go_stream_subscribers",
			Help: "Subscriber count per stream",
		}, []string{"stream_id"}),

		streamCascades: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "live777go_stream_cascades",
			Help: "Cascade session count per stream",
		}, []string{"stream_id"}),
	}
}

func (p *Collector) RecordStreamCreated() { p.streamsActiveTotal.Inc() }
func (p *Collector) RecordStreamEnded()   { p.streamsActiveTotal.Dec() }

func (p *Collector) RecordSessionNegotiated() { p.sessionsTotal.Inc() }

func (p *Collector) RecordNegotiationFailed(code string) {
	p.negotiationFailed.WithLabelValues(code).Inc()
}

// UpdateStreamCounts syncs the per-stream gauges from a ForwardInfo
// snapshot. It does not remove a stream's gauges; ClearStream does that.
func (p *Collector) UpdateStreamCounts(info domain.ForwardInfo) {
	p.streamPublishers.WithLabelValues(info.ID).Set(float64(info.Publish))
	p.streamSubscribers.WithLabelValues(info.ID).Set(float64(info.Subscribe))
	p.streamCascades.WithLabelValues(info.ID).Set(float64(info.Cascade))
}

func (p *Collector) ClearStream(streamID domain.StreamID) {
	p.streamPublishers.DeleteLabelValues(string(streamID))
	p.streamSubscribers.DeleteLabelValues(string(streamID))
	p.streamCascades.DeleteLabelValues(string(streamID))
}
