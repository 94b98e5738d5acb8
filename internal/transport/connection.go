// =============================================================================
// 文件: internal/transport/connection.go
// 描述: 虚拟连接 - 单个远端端点的会话状态聚合
// =============================================================================
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/mrcgq/233/internal/protocol"
)

// Connection 每个远端端点一个, 持有自己的锁
// 不同端点的操作互不阻塞; 没有任何操作需要同时持有两个端点的锁,
// 因此不存在跨端点死锁
//
// 状态隐含在字段值中: 刚创建 (无流量) / 活跃 (lastHeard 随入站刷新) /
// 静默 (距 lastHeard 超过阈值, 仅是巡检分类, 流量到达即恢复活跃)
// 本组件不拥有销毁转换, 生命周期由注册表策略决定
type Connection struct {
	addr *net.UDPAddr

	localSeq  Sequence    // 本端出站序列号, 每发一条恰好前进一格
	theirAcks AckRecord   // 对端序列号的到达记录
	pending   *SentWindow // 本端待确认的出站消息
	dropped   []Message   // 已判定丢失、等待收割的消息
	lastHeard time.Time

	now func() time.Time // 测试注入时钟
	mu  sync.Mutex
}

// NewConnection 创建连接, lastHeard 初始化为当前时刻
func NewConnection(addr *net.UDPAddr) *Connection {
	return newConnection(addr, time.Now)
}

func newConnection(addr *net.UDPAddr, now func() time.Time) *Connection {
	return &Connection{
		addr:      addr,
		pending:   NewSentWindow(),
		lastHeard: now(),
		now:       now,
	}
}

// Addr 远端地址
func (c *Connection) Addr() *net.UDPAddr {
	return c.addr
}

// PrepareOutbound 为一条出站消息盖上序列号和确认快照, 返回线上字节
// 包头构建、序列化、入队发送窗口、前进 localSeq 在锁内作为单一单元完成:
// 序列化失败发生在触碰窗口和序列号之前, 不会留下悬挂的待确认条目
func (c *Connection) PrepareOutbound(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.theirAcks.Snapshot()
	h := protocol.Header{
		Type:     protocol.TypeData,
		Seq:      uint16(c.localSeq),
		Ack:      uint16(snap.LastSeq),
		AckField: snap.Field,
	}
	buf, err := protocol.Encode(&h, payload)
	if err != nil {
		return nil, err
	}

	c.pending.Enqueue(c.localSeq, Message{Addr: c.addr, Payload: payload})
	c.localSeq++
	return buf, nil
}

// PrepareHeartbeat 构造并序列化一个心跳包
// 心跳占用一个序列号 (对端会登记它) 但不入发送窗口:
// 心跳丢失没有需要上报的内容
func (c *Connection) PrepareHeartbeat() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.theirAcks.Snapshot()
	h := protocol.Header{
		Type:     protocol.TypeHeartbeat,
		Seq:      uint16(c.localSeq),
		Ack:      uint16(snap.LastSeq),
		AckField: snap.Field,
	}
	buf, err := protocol.Encode(&h, nil)
	if err != nil {
		return nil, err
	}

	c.localSeq++
	return buf, nil
}

// ProcessInbound 处理一个入站包
// 登记对端序列号, 用包内确认信息结算发送窗口并累积新判定的丢包,
// 刷新 lastHeard, 重建交付给上层的消息
// 确定性操作, 无失败路径
func (c *Connection) ProcessInbound(h *protocol.Header, payload []byte) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.theirAcks.Observe(Sequence(h.Seq))
	if newly := c.pending.Resolve(Sequence(h.Ack), h.AckField); len(newly) > 0 {
		c.dropped = append(c.dropped, newly...)
	}
	c.lastHeard = c.now()

	return Message{Addr: c.addr, Payload: payload}
}

// DrainDropped 原子地取走并清空丢失消息列表
// 读后即弃: 一条消息恰好出现在一次 Drain 结果中
func (c *Connection) DrainDropped() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.dropped
	c.dropped = nil
	return msgs
}

// TimeSinceLastHeard 距最后一次收到该端点数据的时长
func (c *Connection) TimeSinceLastHeard() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastHeard)
}

// PendingCount 发送窗口中待确认的条目数
func (c *Connection) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}
