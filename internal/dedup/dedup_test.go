// =============================================================================
// 文件: internal/dedup/dedup_test.go
// 描述: 重放抑制测试
// =============================================================================
package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestGuardFirstSeenPasses(t *testing.T) {
	g := NewGuard()
	defer g.Close()

	if g.Seen("10.0.0.1:45000", 1) {
		t.Errorf("首见包不应被抑制")
	}
}

func TestGuardReplaySuppressed(t *testing.T) {
	g := NewGuard()
	defer g.Close()

	g.Seen("10.0.0.1:45000", 42)
	if !g.Seen("10.0.0.1:45000", 42) {
		t.Errorf("重放包应被抑制")
	}

	stats := g.GetStats()
	if stats.TotalChecks != 2 {
		t.Errorf("检查计数 = %d, want 2", stats.TotalChecks)
	}
	if stats.Suppressed != 1 {
		t.Errorf("抑制计数 = %d, want 1", stats.Suppressed)
	}
}

func TestGuardKeyIncludesEndpoint(t *testing.T) {
	g := NewGuard()
	defer g.Close()

	// 不同端点的同一序列号互不干扰
	g.Seen("10.0.0.1:45000", 7)
	if g.Seen("10.0.0.2:45000", 7) {
		t.Errorf("其他端点的同号包被误抑制")
	}
}

func TestGuardRotateClearsOldest(t *testing.T) {
	g := NewGuard()
	defer g.Close()

	g.Seen("10.0.0.1:45000", 5)
	// 手动轮换一整圈, 最初登记的时间片被清空复用
	for i := 0; i < maxSlices; i++ {
		g.rotate()
	}
	if g.Seen("10.0.0.1:45000", 5) {
		t.Errorf("保留窗口外的记录应已过期")
	}
}

func TestGuardConcurrent(t *testing.T) {
	g := NewGuard()
	defer g.Close()

	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			endpoint := fmt.Sprintf("10.0.%d.1:45000", w)
			for i := 0; i < perWorker; i++ {
				g.Seen(endpoint, uint16(i))
			}
		}(w)
	}
	wg.Wait()

	stats := g.GetStats()
	if stats.TotalChecks != workers*perWorker {
		t.Errorf("检查计数 = %d, want %d", stats.TotalChecks, workers*perWorker)
	}
}
