// =============================================================================
// 文件: internal/transport/ack_record.go
// 描述: 确认记录 - 本端视角下对端序列号的到达轨迹
// =============================================================================
package transport

// AckRecord 记录最近观察到的对端序列号
// lastSeq 本身永远视为已观察; field 的第 i 位 (i>=1, 掩码 1<<(i-1))
// 表示 lastSeq-i 是否已观察
// 非并发安全, 由所属 Connection 的锁保护
type AckRecord struct {
	lastSeq Sequence
	field   uint32
}

// AckSnapshot 确认记录快照, 嵌入出站包头
type AckSnapshot struct {
	LastSeq Sequence
	Field   uint32
}

// Observe 登记一个到达的对端序列号
// 纯簿记, 无失败路径: 太旧无法表示的序列号静默忽略
// (对端看来它本来就等同于未确认, 这只是优化信号而非正确性路径)
func (r *AckRecord) Observe(seq Sequence) {
	if seq == r.lastSeq {
		return
	}

	if IsNewer(seq, r.lastSeq) {
		d := Distance(seq, r.lastSeq)
		// 左移丢弃超出视界的历史; Go 中移位数 >= 32 结果为 0
		r.field <<= uint(d)
		if d <= AckHorizon {
			r.field |= 1 << uint(d-1)
		}
		r.lastSeq = seq
		return
	}

	// 比 lastSeq 旧: 在视界内则置位, 否则丢弃
	if d := Distance(r.lastSeq, seq); d <= AckHorizon {
		r.field |= 1 << uint(d-1)
	}
}

// Snapshot 取当前快照
func (r *AckRecord) Snapshot() AckSnapshot {
	return AckSnapshot{LastSeq: r.lastSeq, Field: r.field}
}
