// =============================================================================
// 文件: internal/transport/connection_test.go
// 描述: 虚拟连接测试
// =============================================================================
package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/mrcgq/233/internal/protocol"
)

func testAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestConnectionOutboundSeqAdvances(t *testing.T) {
	c := NewConnection(testAddr(9000))

	for i := 0; i < 3; i++ {
		buf, err := c.PrepareOutbound([]byte("hello"))
		if err != nil {
			t.Fatalf("PrepareOutbound 失败: %v", err)
		}
		h, _, err := protocol.Decode(buf)
		if err != nil {
			t.Fatalf("解码失败: %v", err)
		}
		if h.Seq != uint16(i) {
			t.Errorf("序列号 = %d, want %d", h.Seq, i)
		}
	}
	if c.PendingCount() != 3 {
		t.Errorf("待确认条目 = %d, want 3", c.PendingCount())
	}
}

func TestConnectionOutboundCarriesAckState(t *testing.T) {
	c := NewConnection(testAddr(9001))

	// 先收到对端序列号 7, 之后出站包必须回声最新确认状态
	c.ProcessInbound(&protocol.Header{Type: protocol.TypeData, Seq: 7}, []byte("in"))

	buf, err := c.PrepareOutbound([]byte("out"))
	if err != nil {
		t.Fatalf("PrepareOutbound 失败: %v", err)
	}
	h, payload, err := protocol.Decode(buf)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if h.Ack != 7 {
		t.Errorf("Ack = %d, want 7", h.Ack)
	}
	if !bytes.Equal(payload, []byte("out")) {
		t.Errorf("负载错误: %q", payload)
	}
}

func TestConnectionOversizedPayloadNoStateChange(t *testing.T) {
	c := NewConnection(testAddr(9002))

	big := make([]byte, protocol.MaxPayloadSize+1)
	if _, err := c.PrepareOutbound(big); err == nil {
		t.Fatalf("超长负载应失败")
	}
	// 失败不留痕: 窗口为空, 序列号未前进
	if c.PendingCount() != 0 {
		t.Errorf("失败后窗口应为空: %d", c.PendingCount())
	}
	buf, err := c.PrepareOutbound([]byte("ok"))
	if err != nil {
		t.Fatalf("后续发送失败: %v", err)
	}
	h, _, _ := protocol.Decode(buf)
	if h.Seq != 0 {
		t.Errorf("失败后序列号应仍为 0: got %d", h.Seq)
	}
}

func TestConnectionHeartbeatConsumesSeqNotWindow(t *testing.T) {
	c := NewConnection(testAddr(9003))

	buf, err := c.PrepareHeartbeat()
	if err != nil {
		t.Fatalf("PrepareHeartbeat 失败: %v", err)
	}
	h, _, err := protocol.Decode(buf)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if !protocol.IsHeartbeat(h) {
		t.Errorf("类型应为心跳")
	}
	if h.Seq != 0 {
		t.Errorf("心跳序列号 = %d, want 0", h.Seq)
	}
	// 心跳不入窗口, 但占用序列号
	if c.PendingCount() != 0 {
		t.Errorf("心跳不应入发送窗口")
	}
	buf, _ = c.PrepareOutbound([]byte("d"))
	h, _, _ = protocol.Decode(buf)
	if h.Seq != 1 {
		t.Errorf("心跳后数据包序列号 = %d, want 1", h.Seq)
	}
}

func TestConnectionInboundResolvesDrops(t *testing.T) {
	c := NewConnection(testAddr(9004))

	if _, err := c.PrepareOutbound([]byte("lost")); err != nil {
		t.Fatalf("PrepareOutbound 失败: %v", err)
	}

	// 对端的 ack 推进到视界之外: 序列号 0 判丢
	c.ProcessInbound(&protocol.Header{
		Type: protocol.TypeData,
		Seq:  1,
		Ack:  uint16(AckHorizon + 1),
	}, nil)

	dropped := c.DrainDropped()
	if len(dropped) != 1 {
		t.Fatalf("应有 1 条丢包: got %d", len(dropped))
	}
	if string(dropped[0].Payload) != "lost" {
		t.Errorf("丢包内容错误: %q", dropped[0].Payload)
	}
	// 读后即弃
	if again := c.DrainDropped(); len(again) != 0 {
		t.Errorf("二次收割应为空: got %d", len(again))
	}
}

func TestConnectionLastHeardRefresh(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	c := newConnection(testAddr(9005), func() time.Time { return clock })

	clock = base.Add(5 * time.Second)
	if got := c.TimeSinceLastHeard(); got != 5*time.Second {
		t.Errorf("静默时长 = %v, want 5s", got)
	}

	c.ProcessInbound(&protocol.Header{Type: protocol.TypeHeartbeat, Seq: 0}, nil)
	if got := c.TimeSinceLastHeard(); got != 0 {
		t.Errorf("入站后静默时长应归零: %v", got)
	}
}
