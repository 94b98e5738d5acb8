// =============================================================================
// 文件: internal/transport/session.go
// 描述: 会话层 - 注册表与连接操作的编排入口
// =============================================================================
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/mrcgq/233/internal/metrics"
	"github.com/mrcgq/233/internal/protocol"
)

// Session 持有虚拟连接注册表, 是包处理路径的两个入口:
// 出站预处理 (盖序列号/确认快照) 和入站处理 (更新确认簿记, 浮出丢包)
// 本层不做任何阻塞 I/O, 实际收发由载体负责
type Session struct {
	registry *ConnectionRegistry
	metrics  *metrics.MirageMetrics // 可为 nil
}

// NewSession 创建会话层
func NewSession(config RegistryConfig, m *metrics.MirageMetrics) *Session {
	return &Session{
		registry: NewConnectionRegistry(config),
		metrics:  m,
	}
}

// Registry 底层注册表
func (s *Session) Registry() *ConnectionRegistry {
	return s.registry
}

// PrepareOutbound 为消息盖上序列号/确认信息并序列化成线上字节
// 序列化失败时消息不算已发送, 发送窗口里不会留下悬挂的待确认条目
// (入队与包头构建/序列化在连接锁内同成败)
func (s *Session) PrepareOutbound(msg Message) ([]byte, error) {
	conn, err := s.registry.GetOrCreate(msg.Addr)
	if err != nil {
		return nil, err
	}

	buf, err := conn.PrepareOutbound(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	if s.metrics != nil {
		s.metrics.AddPacketsSent(1)
	}
	return buf, nil
}

// PrepareHeartbeat 构造一个只携带确认信息的心跳包
func (s *Session) PrepareHeartbeat(addr *net.UDPAddr) ([]byte, error) {
	conn, err := s.registry.GetOrCreate(addr)
	if err != nil {
		return nil, err
	}

	buf, err := conn.PrepareHeartbeat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	if s.metrics != nil {
		s.metrics.AddHeartbeatsSent(1)
	}
	return buf, nil
}

// ProcessInbound 处理一个已解析的入站包, 返回重建的应用层消息
// 心跳包同样走这里刷新确认簿记, 载体负责不向上层交付其空负载
func (s *Session) ProcessInbound(addr *net.UDPAddr, h *protocol.Header, payload []byte) (Message, error) {
	conn, err := s.registry.GetOrCreate(addr)
	if err != nil {
		return Message{}, err
	}

	msg := conn.ProcessInbound(h, payload)
	if s.metrics != nil {
		s.metrics.AddPacketsReceived(1)
	}
	return msg, nil
}

// HarvestDropped 取走端点累积的丢失消息 (读后即弃)
func (s *Session) HarvestDropped(addr *net.UDPAddr) ([]Message, error) {
	conn, err := s.registry.GetOrCreate(addr)
	if err != nil {
		return nil, err
	}

	msgs := conn.DrainDropped()
	if s.metrics != nil && len(msgs) > 0 {
		s.metrics.AddDroppedHarvested(uint64(len(msgs)))
	}
	return msgs, nil
}

// StartLivenessMonitor 启动后台活性巡检
func (s *Session) StartLivenessMonitor() {
	s.registry.StartSweep()
}

// IdleFor 距上次收到端点数据的时长; 端点未知返回 false
func (s *Session) IdleFor(addr *net.UDPAddr) (time.Duration, bool) {
	conn := s.registry.Get(addr)
	if conn == nil {
		return 0, false
	}
	return conn.TimeSinceLastHeard(), true
}

// Close 关闭会话层 (停止巡检, 拒绝后续操作)
func (s *Session) Close() {
	s.registry.Close()
}
