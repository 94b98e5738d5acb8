// =============================================================================
// 文件: internal/metrics/metrics.go
// 描述: 指标收集器 - 可靠层运行状态的计数器
// =============================================================================
package metrics

import (
	"sync/atomic"
	"time"
)

// MirageMetrics 指标收集器
type MirageMetrics struct {
	// 包统计
	packetsSent       uint64
	packetsReceived   uint64
	heartbeatsSent    uint64
	decodeErrors      uint64
	replaysSuppressed uint64

	// 丢包统计
	droppedHarvested uint64

	// 活性巡检统计
	staleFlagged uint64
	sweepRuns    uint64

	// 启动时间
	startTime time.Time
}

// New 创建指标收集器
func New() *MirageMetrics {
	return &MirageMetrics{
		startTime: time.Now(),
	}
}

// AddPacketsSent 增加发送包数
func (m *MirageMetrics) AddPacketsSent(n uint64) {
	atomic.AddUint64(&m.packetsSent, n)
}

// AddPacketsReceived 增加接收包数
func (m *MirageMetrics) AddPacketsReceived(n uint64) {
	atomic.AddUint64(&m.packetsReceived, n)
}

// AddHeartbeatsSent 增加心跳发送数
func (m *MirageMetrics) AddHeartbeatsSent(n uint64) {
	atomic.AddUint64(&m.heartbeatsSent, n)
}

// AddDecodeErrors 增加解码失败数
func (m *MirageMetrics) AddDecodeErrors(n uint64) {
	atomic.AddUint64(&m.decodeErrors, n)
}

// AddReplaysSuppressed 增加重放抑制数
func (m *MirageMetrics) AddReplaysSuppressed(n uint64) {
	atomic.AddUint64(&m.replaysSuppressed, n)
}

// AddDroppedHarvested 增加已收获的丢失消息数
func (m *MirageMetrics) AddDroppedHarvested(n uint64) {
	atomic.AddUint64(&m.droppedHarvested, n)
}

// AddStaleFlagged 增加静默端点标记数
func (m *MirageMetrics) AddStaleFlagged(n uint64) {
	atomic.AddUint64(&m.staleFlagged, n)
}

// AddSweepRuns 增加巡检轮数
func (m *MirageMetrics) AddSweepRuns(n uint64) {
	atomic.AddUint64(&m.sweepRuns, n)
}

// Snapshot 指标快照
type Snapshot struct {
	PacketsSent       uint64
	PacketsReceived   uint64
	HeartbeatsSent    uint64
	DecodeErrors      uint64
	ReplaysSuppressed uint64
	DroppedHarvested  uint64
	StaleFlagged      uint64
	SweepRuns         uint64
	Uptime            time.Duration
}

// GetSnapshot 取所有计数器的一致快照
func (m *MirageMetrics) GetSnapshot() Snapshot {
	return Snapshot{
		PacketsSent:       atomic.LoadUint64(&m.packetsSent),
		PacketsReceived:   atomic.LoadUint64(&m.packetsReceived),
		HeartbeatsSent:    atomic.LoadUint64(&m.heartbeatsSent),
		DecodeErrors:      atomic.LoadUint64(&m.decodeErrors),
		ReplaysSuppressed: atomic.LoadUint64(&m.replaysSuppressed),
		DroppedHarvested:  atomic.LoadUint64(&m.droppedHarvested),
		StaleFlagged:      atomic.LoadUint64(&m.staleFlagged),
		SweepRuns:         atomic.LoadUint64(&m.sweepRuns),
		Uptime:            time.Since(m.startTime),
	}
}
