// =============================================================================
// 文件: internal/transport/types.go
// 描述: 可靠层统一类型定义 - 消除重复定义
// =============================================================================
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/mrcgq/233/internal/protocol"
)

// 错误定义
var (
	ErrSerializationFailed = fmt.Errorf("序列化失败")
	ErrRegistryClosed      = fmt.Errorf("注册表已关闭")
)

// 可靠层常量
const (
	// AckHorizon 确认视界: 位域能表示的最大序列号年龄
	// 比最新确认序列号旧超过这个距离的包无法与"从未到达"区分
	AckHorizon = protocol.AckFieldBits

	// DefaultStaleTimeout 默认判定端点失联的静默时长
	DefaultStaleTimeout = 10 * time.Second

	// DefaultPollInterval 默认活性巡检间隔
	DefaultPollInterval = 1 * time.Second
)

// Message 应用层消息, 构造后不可变, 可在发送/丢包边界间自由拷贝
type Message struct {
	Addr    *net.UDPAddr
	Payload []byte
}

// Handler 载体层事件处理接口
type Handler interface {
	// OnMessage 收到数据包时调用
	OnMessage(msg Message)

	// OnDropped 收获到丢失消息时调用
	OnDropped(msgs []Message)
}

// StaleFunc 活性巡检发现静默端点时的回调
// idle 为回调时刻距最后一次收到该端点数据的时长
type StaleFunc func(addr *net.UDPAddr, idle time.Duration)
