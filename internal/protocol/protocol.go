// =============================================================================
// 文件: internal/protocol/protocol.go
// 描述: Mirage 可靠层线格式 - 固定包头编解码
// =============================================================================

package protocol

import (
	"encoding/binary"
	"fmt"
)

// 包类型
const (
	TypeData      = 0x01 // 数据包
	TypeHeartbeat = 0x02 // 心跳包 (空负载, 只携带确认信息)
)

// =============================================================================
// 线格式常量 (两端必须一致)
// =============================================================================

const (
	// HeaderSize 包头大小
	// Type(1) + Seq(2) + Ack(2) + AckField(4) = 9
	HeaderSize = 9

	// SeqBits 序列号位宽
	SeqBits = 16

	// AckFieldBits 确认位域位宽 (即可靠检测视界)
	// 32 位 ⇒ 相对最新序列号可表示最近 32 个包的到达情况
	AckFieldBits = 32

	// MaxDatagramSize 单个数据报最大安全大小
	// MTU(1500) - IP头(20) - UDP头(8) 再保守取整, 兼容 IPv6 最小 MTU
	MaxDatagramSize = 1280

	// MaxPayloadSize 单包最大负载
	MaxPayloadSize = MaxDatagramSize - HeaderSize
)

// Header 可靠层包头
// Ack/AckField 是发送方对"我收到了你哪些包"的快照
type Header struct {
	Type     uint8
	Seq      uint16
	Ack      uint16
	AckField uint32
}

// Encode 序列化包头+负载
// 格式: Type(1) + Seq(2) + Ack(2) + AckField(4) + Payload(N), 大端序
func Encode(h *Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("负载太大: %d > %d", len(payload), MaxPayloadSize)
	}
	if h.Type == TypeHeartbeat && len(payload) != 0 {
		return nil, fmt.Errorf("心跳包不能携带负载: %d 字节", len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = h.Type
	binary.BigEndian.PutUint16(buf[1:3], h.Seq)
	binary.BigEndian.PutUint16(buf[3:5], h.Ack)
	binary.BigEndian.PutUint32(buf[5:9], h.AckField)
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode 解析包头, 返回包头和负载
// 负载引用 data 的底层数组, 调用方需要时自行拷贝
func Decode(data []byte) (*Header, []byte, error) {
	if len(data) < HeaderSize {
		return nil, nil, fmt.Errorf("数据报太短: %d < %d", len(data), HeaderSize)
	}

	h := &Header{
		Type:     data[0],
		Seq:      binary.BigEndian.Uint16(data[1:3]),
		Ack:      binary.BigEndian.Uint16(data[3:5]),
		AckField: binary.BigEndian.Uint32(data[5:9]),
	}

	switch h.Type {
	case TypeData, TypeHeartbeat:
	default:
		return nil, nil, fmt.Errorf("未知包类型: 0x%02X", h.Type)
	}

	if h.Type == TypeHeartbeat && len(data) > HeaderSize {
		return nil, nil, fmt.Errorf("心跳包携带了负载: %d 字节", len(data)-HeaderSize)
	}

	return h, data[HeaderSize:], nil
}

// IsHeartbeat 检查包头是否是心跳包
func IsHeartbeat(h *Header) bool {
	return h.Type == TypeHeartbeat
}
