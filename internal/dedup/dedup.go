// =============================================================================
// 文件: internal/dedup/dedup.go
// 描述: 重放抑制 - 基于布隆过滤器时间片的 (端点, 序列号) 去重
// =============================================================================
package dedup

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// 布隆过滤器参数
	bloomExpectedItems = 100000 // 预期每个时间片的项目数
	bloomFalsePositive = 0.0001 // 万分之一误报率

	// 时间片配置
	sliceDuration = 10 * time.Second // 每个时间片10秒
	maxSlices     = 12               // 保留12个时间片 = 2分钟
)

// Guard 重放抑制器
// 确认记录只能在视界内识别重复序列号, 视界外的迟到重放由这里兜底
// 布隆过滤器有误报率, 极小概率把首见包当成重放; 因此只作为可选的
// 抑制层, 不承载正确性
// 注意: 16 位序列号在保留窗口内回绕的高速链路不要启用,
// 回绕后的同号新包会被误判为重放
type Guard struct {
	slices     [maxSlices]*timeSlice
	currentIdx int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats GuardStats
}

// GuardStats 统计信息
type GuardStats struct {
	TotalChecks uint64
	Suppressed  uint64
}

// timeSlice 时间片
type timeSlice struct {
	bloom *bloom.BloomFilter
	mu    sync.RWMutex
}

func newTimeSlice() *timeSlice {
	return &timeSlice{
		bloom: bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositive),
	}
}

// NewGuard 创建重放抑制器, 用完必须 Close
func NewGuard() *Guard {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Guard{
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < maxSlices; i++ {
		g.slices[i] = newTimeSlice()
	}

	g.wg.Add(1)
	go g.rotateLoop()

	return g
}

// key 构造 (端点, 序列号) 指纹
func key(endpoint string, seq uint16) []byte {
	buf := make([]byte, len(endpoint)+2)
	copy(buf, endpoint)
	binary.BigEndian.PutUint16(buf[len(endpoint):], seq)
	return buf
}

// Seen 检查并登记一个 (端点, 序列号) 对
// 返回 true 表示最近已见过, 调用方应丢弃该数据报
func (g *Guard) Seen(endpoint string, seq uint16) bool {
	atomic.AddUint64(&g.stats.TotalChecks, 1)
	k := key(endpoint, seq)

	// 任一时间片命中即视为重放
	for i := 0; i < maxSlices; i++ {
		s := g.slices[i]
		s.mu.RLock()
		hit := s.bloom.Test(k)
		s.mu.RUnlock()
		if hit {
			atomic.AddUint64(&g.stats.Suppressed, 1)
			return true
		}
	}

	// 登记到当前时间片
	cur := g.slices[atomic.LoadInt64(&g.currentIdx)]
	cur.mu.Lock()
	cur.bloom.Add(k)
	cur.mu.Unlock()

	return false
}

// rotateLoop 定期轮换时间片, 最旧的清空复用
func (g *Guard) rotateLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(sliceDuration)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.rotate()
		}
	}
}

func (g *Guard) rotate() {
	next := (atomic.LoadInt64(&g.currentIdx) + 1) % maxSlices
	s := g.slices[next]
	s.mu.Lock()
	s.bloom.ClearAll()
	s.mu.Unlock()
	atomic.StoreInt64(&g.currentIdx, next)
}

// GetStats 获取统计
func (g *Guard) GetStats() GuardStats {
	return GuardStats{
		TotalChecks: atomic.LoadUint64(&g.stats.TotalChecks),
		Suppressed:  atomic.LoadUint64(&g.stats.Suppressed),
	}
}

// Close 停止轮换协程
func (g *Guard) Close() {
	g.cancel()
	g.wg.Wait()
}
