// =============================================================================
// 文件: internal/transport/seqnum.go
// 描述: 序列号回绕算术 - 半区间比较规则
// =============================================================================
package transport

// Sequence 16 位序列号, 溢出即回绕
type Sequence uint16

const (
	// seqHalfRange 序列号空间的一半
	seqHalfRange = 1 << 15
)

// IsNewer 判断 a 是否比 b 新
// 半区间规则: (a - b) mod 2^16 落在 (0, 2^15] 内则 a 更新
// 只要两个被比较的值相差不超过半个空间, 计数器可以无限回绕
func IsNewer(a, b Sequence) bool {
	return (a > b && a-b <= seqHalfRange) ||
		(a < b && b-a > seqHalfRange)
}

// Distance 回绕感知的有向距离 a-b
// a 比 b 新返回正值, a 比 b 旧返回负值, 相等返回 0
func Distance(a, b Sequence) int {
	if a == b {
		return 0
	}
	if IsNewer(a, b) {
		return int(uint16(a - b))
	}
	return -int(uint16(b - a))
}
