package gvsp

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector exports a Reassembler's cumulative Stats as
// Prometheus gauges, for services that embed a camera and want the
// usual /metrics endpoint. Domain-stack wiring per SPEC_FULL.md §3;
// github.com/prometheus/client_golang.
type MetricsCollector struct {
	r *Reassembler

	completed        *prometheus.Desc
	failures         *prometheus.Desc
	underruns        *prometheus.Desc
	missingPackets   *prometheus.Desc
	resentPackets    *prometheus.Desc
	transferredBytes *prometheus.Desc
}

// NewMetricsCollector wraps r for Prometheus registration.
func NewMetricsCollector(r *Reassembler, constLabels prometheus.Labels) *MetricsCollector {
	ns := "aravis_gvsp"
	return &MetricsCollector{
		r:                r,
		completed:        prometheus.NewDesc(ns+"_completed_buffers_total", "Frames reassembled with status Success.", nil, constLabels),
		failures:         prometheus.NewDesc(ns+"_failures_total", "Frames finalized with a non-Success status.", nil, constLabels),
		underruns:        prometheus.NewDesc(ns+"_underruns_total", "Leaders received with no free input buffer available.", nil, constLabels),
		missingPackets:   prometheus.NewDesc(ns+"_missing_packets_total", "Payload packets never received across all frames.", nil, constLabels),
		resentPackets:    prometheus.NewDesc(ns+"_resent_packets_total", "Payload packets requested via PACKET_RESEND_CMD.", nil, constLabels),
		transferredBytes: prometheus.NewDesc(ns+"_transferred_bytes_total", "Payload bytes copied into buffers.", nil, constLabels),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.completed
	ch <- c.failures
	ch <- c.underruns
	ch <- c.missingPackets
	ch <- c.resentPackets
	ch <- c.transferredBytes
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.r.Stats()
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(s.CompletedBuffers))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.Failures))
	ch <- prometheus.MustNewConstMetric(c.underruns, prometheus.CounterValue, float64(s.Underruns))
	ch <- prometheus.MustNewConstMetric(c.missingPackets, prometheus.CounterValue, float64(s.MissingPackets))
	ch <- prometheus.MustNewConstMetric(c.resentPackets, prometheus.CounterValue, float64(s.ResentPackets))
	ch <- prometheus.MustNewConstMetric(c.transferredBytes, prometheus.CounterValue, float64(s.TransferredBytes))
}
