// =============================================================================
// 文件: internal/transport/udp.go
// 描述: UDP 载体 - 实际收发数据报, 桥接会话层
// =============================================================================
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrcgq/233/internal/dedup"
	"github.com/mrcgq/233/internal/metrics"
	"github.com/mrcgq/233/internal/protocol"
)

// UDPCarrier UDP 载体
// 读循环解析数据报交给会话层, 发送路径经会话层盖章后写回 socket
// 会话层本身不做 I/O, 所有网络阻塞都发生在这里
type UDPCarrier struct {
	addr    string
	conn    *net.UDPConn
	session *Session
	handler Handler
	guard   *dedup.Guard           // 可为 nil
	metrics *metrics.MirageMetrics // 可为 nil

	// 统计
	bytesRecv uint64
	bytesSent uint64

	// 控制
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running int32
}

// NewUDPCarrier 创建 UDP 载体
func NewUDPCarrier(listen string, session *Session, handler Handler, guard *dedup.Guard, m *metrics.MirageMetrics) *UDPCarrier {
	ctx, cancel := context.WithCancel(context.Background())
	return &UDPCarrier{
		addr:    listen,
		session: session,
		handler: handler,
		guard:   guard,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start 监听并启动读循环
func (c *UDPCarrier) Start() error {
	addr, err := net.ResolveUDPAddr("udp", c.addr)
	if err != nil {
		return fmt.Errorf("解析地址: %w", err)
	}

	c.conn, err = net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}

	atomic.StoreInt32(&c.running, 1)
	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// readLoop 读取循环
func (c *UDPCarrier) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 65535)

	for atomic.LoadInt32(&c.running) == 1 {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-c.ctx.Done():
				return
			default:
				continue
			}
		}

		if n == 0 {
			continue
		}
		atomic.AddUint64(&c.bytesRecv, uint64(n))

		data := make([]byte, n)
		copy(data, buf[:n])

		deliverDatagram(c.session, c.guard, c.metrics, c.handler, data, addr)
	}
}

// Send 发送一条应用层消息
func (c *UDPCarrier) Send(msg Message) error {
	buf, err := c.session.PrepareOutbound(msg)
	if err != nil {
		return err
	}

	n, err := c.conn.WriteToUDP(buf, msg.Addr)
	if err != nil {
		return fmt.Errorf("UDP 发送失败: %w", err)
	}
	atomic.AddUint64(&c.bytesSent, uint64(n))
	return nil
}

// SendHeartbeat 向端点发送心跳
func (c *UDPCarrier) SendHeartbeat(addr *net.UDPAddr) error {
	buf, err := c.session.PrepareHeartbeat(addr)
	if err != nil {
		return err
	}

	n, err := c.conn.WriteToUDP(buf, addr)
	if err != nil {
		return fmt.Errorf("UDP 发送失败: %w", err)
	}
	atomic.AddUint64(&c.bytesSent, uint64(n))
	return nil
}

// LocalAddr 本地监听地址
func (c *UDPCarrier) LocalAddr() *net.UDPAddr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Close 停止读循环并关闭 socket
func (c *UDPCarrier) Close() {
	if !atomic.CompareAndSwapInt32(&c.running, 1, 0) {
		return
	}
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
	}
	c.wg.Wait()
}

// deliverDatagram 入站数据报的公共处理路径 (UDP/WebSocket 载体共用)
// 解码 -> 重放检查 -> 会话层簿记 -> 交付上层 -> 收获丢包
func deliverDatagram(session *Session, guard *dedup.Guard, m *metrics.MirageMetrics, handler Handler, data []byte, addr *net.UDPAddr) {
	h, payload, err := protocol.Decode(data)
	if err != nil {
		if m != nil {
			m.AddDecodeErrors(1)
		}
		return
	}

	if guard != nil && guard.Seen(addr.String(), h.Seq) {
		if m != nil {
			m.AddReplaysSuppressed(1)
		}
		return
	}

	msg, err := session.ProcessInbound(addr, h, payload)
	if err != nil {
		// 注册表已关闭, 载体也在收尾路径上
		return
	}

	if h.Type == protocol.TypeData && handler != nil {
		handler.OnMessage(msg)
	}

	// 本次入站结算出的丢包立即上报
	if dropped, err := session.HarvestDropped(addr); err == nil && len(dropped) > 0 && handler != nil {
		handler.OnDropped(dropped)
	}
}
