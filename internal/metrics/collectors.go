// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器定义
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionStats 会话层统计数据接口
type SessionStats interface {
	ActiveConns() int64
	TotalConns() uint64
}

// SessionCollector 会话层指标收集器
type SessionCollector struct {
	statsProvider SessionStats
	metrics       *MirageMetrics

	// 描述符
	activeConnsDesc      *prometheus.Desc
	totalConnsDesc       *prometheus.Desc
	packetsSentDesc      *prometheus.Desc
	packetsReceivedDesc  *prometheus.Desc
	heartbeatsSentDesc   *prometheus.Desc
	decodeErrorsDesc     *prometheus.Desc
	replaysDesc          *prometheus.Desc
	droppedHarvestedDesc *prometheus.Desc
	staleFlaggedDesc     *prometheus.Desc
	sweepRunsDesc        *prometheus.Desc
	uptimeDesc           *prometheus.Desc
}

// NewSessionCollector 创建会话层收集器
func NewSessionCollector(provider SessionStats, m *MirageMetrics) *SessionCollector {
	namespace := "mirage"
	subsystem := "session"

	return &SessionCollector{
		statsProvider: provider,
		metrics:       m,

		activeConnsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "active_connections"),
			"Number of currently tracked virtual connections",
			nil, nil,
		),
		totalConnsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections_total"),
			"Total number of virtual connections ever created",
			nil, nil,
		),
		packetsSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "packets_sent_total"),
			"Total outbound packets stamped by the session layer",
			nil, nil,
		),
		packetsReceivedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "packets_received_total"),
			"Total inbound packets processed by the session layer",
			nil, nil,
		),
		heartbeatsSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "heartbeats_sent_total"),
			"Total heartbeat packets emitted",
			nil, nil,
		),
		decodeErrorsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "decode_errors_total"),
			"Total datagrams rejected by the wire decoder",
			nil, nil,
		),
		replaysDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "replays_suppressed_total"),
			"Total datagrams suppressed by the replay guard",
			nil, nil,
		),
		droppedHarvestedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "dropped_harvested_total"),
			"Total messages surfaced as dropped (aged past the ack horizon)",
			nil, nil,
		),
		staleFlaggedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "stale_flagged_total"),
			"Total stale-endpoint flags raised by the liveness sweep",
			nil, nil,
		),
		sweepRunsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "sweep_runs_total"),
			"Total liveness sweep iterations",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "uptime_seconds"),
			"Session layer uptime in seconds",
			nil, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeConnsDesc
	ch <- c.totalConnsDesc
	ch <- c.packetsSentDesc
	ch <- c.packetsReceivedDesc
	ch <- c.heartbeatsSentDesc
	ch <- c.decodeErrorsDesc
	ch <- c.replaysDesc
	ch <- c.droppedHarvestedDesc
	ch <- c.staleFlaggedDesc
	ch <- c.sweepRunsDesc
	ch <- c.uptimeDesc
}

// Collect 实现 prometheus.Collector
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	if c.statsProvider != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeConnsDesc, prometheus.GaugeValue,
			float64(c.statsProvider.ActiveConns()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.totalConnsDesc, prometheus.CounterValue,
			float64(c.statsProvider.TotalConns()),
		)
	}

	if c.metrics == nil {
		return
	}
	s := c.metrics.GetSnapshot()

	ch <- prometheus.MustNewConstMetric(
		c.packetsSentDesc, prometheus.CounterValue, float64(s.PacketsSent))
	ch <- prometheus.MustNewConstMetric(
		c.packetsReceivedDesc, prometheus.CounterValue, float64(s.PacketsReceived))
	ch <- prometheus.MustNewConstMetric(
		c.heartbeatsSentDesc, prometheus.CounterValue, float64(s.HeartbeatsSent))
	ch <- prometheus.MustNewConstMetric(
		c.decodeErrorsDesc, prometheus.CounterValue, float64(s.DecodeErrors))
	ch <- prometheus.MustNewConstMetric(
		c.replaysDesc, prometheus.CounterValue, float64(s.ReplaysSuppressed))
	ch <- prometheus.MustNewConstMetric(
		c.droppedHarvestedDesc, prometheus.CounterValue, float64(s.DroppedHarvested))
	ch <- prometheus.MustNewConstMetric(
		c.staleFlaggedDesc, prometheus.CounterValue, float64(s.StaleFlagged))
	ch <- prometheus.MustNewConstMetric(
		c.sweepRunsDesc, prometheus.CounterValue, float64(s.SweepRuns))
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue, s.Uptime.Seconds())
}
