// =============================================================================
// 文件: internal/transport/sent_window.go
// 描述: 发送窗口 - 追踪待确认的出站消息并收获超龄丢包
// =============================================================================
package transport

import (
	"sort"
)

// sentEntry 发送窗口条目
// 在被确认或判定丢失前由所属 Connection 独占, 解决后即移除
type sentEntry struct {
	seq Sequence
	msg Message
}

// SentWindow 本端出站消息的待确认集合
// 非并发安全, 由所属 Connection 的锁保护
type SentWindow struct {
	entries map[Sequence]*sentEntry
}

// NewSentWindow 创建发送窗口
func NewSentWindow() *SentWindow {
	return &SentWindow{
		entries: make(map[Sequence]*sentEntry),
	}
}

// Enqueue 按序列号登记一条待确认消息
// 负载拷贝一份, 窗口内条目不受调用方后续修改影响
// 同序列号重复登记按覆盖处理 (调用方契约保证序列号不复用)
func (w *SentWindow) Enqueue(seq Sequence, msg Message) {
	payload := make([]byte, len(msg.Payload))
	copy(payload, msg.Payload)

	w.entries[seq] = &sentEntry{
		seq: seq,
		msg: Message{Addr: msg.Addr, Payload: payload},
	}
}

// Resolve 用对端的确认快照结算窗口, 返回新判定的丢失消息
//
// 对条目序列号 s 相对 ackSeq 的年龄 d = Distance(ackSeq, s):
//   - d == 0:            已确认, 移除
//   - 1 <= d <= 视界:    位域对应位已置则确认移除, 未置则继续等待
//   - d > 视界:          对端的确认记录已无法表达它 ⇒ 推定丢失, 移除并返回
//   - d < 0:             比 ackSeq 新, 继续等待后续确认
//
// 引用已结算序列号的确认是正常竞态, 静默无操作
// 返回顺序: 最旧的在前 (回绕感知排序)
func (w *SentWindow) Resolve(ackSeq Sequence, ackField uint32) []Message {
	var dropped []*sentEntry

	for seq, e := range w.entries {
		d := Distance(ackSeq, seq)
		switch {
		case d == 0:
			delete(w.entries, seq)
		case d > AckHorizon:
			dropped = append(dropped, e)
			delete(w.entries, seq)
		case d >= 1:
			if ackField&(1<<uint(d-1)) != 0 {
				delete(w.entries, seq)
			}
		}
	}

	if len(dropped) == 0 {
		return nil
	}

	sort.Slice(dropped, func(i, j int) bool {
		return IsNewer(dropped[j].seq, dropped[i].seq)
	})

	msgs := make([]Message, len(dropped))
	for i, e := range dropped {
		msgs[i] = e.msg
	}
	return msgs
}

// Len 当前待确认条目数
func (w *SentWindow) Len() int {
	return len(w.entries)
}

// Contains 指定序列号是否仍在窗口中
func (w *SentWindow) Contains(seq Sequence) bool {
	_, ok := w.entries[seq]
	return ok
}
