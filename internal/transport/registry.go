// =============================================================================
// 文件: internal/transport/registry.go
// 描述: 连接注册表 - 端点到虚拟连接的并发映射与活性巡检
// =============================================================================
package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// RegistryConfig 注册表配置
type RegistryConfig struct {
	// StaleTimeout 静默多久判定端点失联
	StaleTimeout time.Duration

	// PollInterval 巡检间隔, 与包处理路径节奏无关
	PollInterval time.Duration

	// Evict 巡检发现静默端点时是否移除连接
	// 默认 false: 只通过回调上报, 连接保留 (流量恢复即重新活跃)
	Evict bool

	// OnStale 静默端点回调, 每轮巡检对每个仍然静默的端点触发一次
	OnStale StaleFunc

	// OnSweep 每轮巡检结束后回调一次, 参数是本轮标记的端点数
	OnSweep func(flagged int)
}

// DefaultRegistryConfig 默认配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		StaleTimeout: DefaultStaleTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// ConnectionRegistry 端点 -> Connection 的并发注册表
// 查找命中后不再持有映射层面的任何锁, 后续工作只依赖该连接自己的锁,
// 端点之间互不阻塞; 插入由 LoadOrStore 保证单一胜出者
type ConnectionRegistry struct {
	config RegistryConfig

	conns sync.Map // addr.String() -> *Connection
	sf    singleflight.Group

	// 统计
	totalConns  uint64
	activeConns int64

	now func() time.Time

	// 控制
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sweeping int32
	closed   int32
}

// NewConnectionRegistry 创建注册表
// 生命周期归调用方: 用完必须 Close, 否则巡检协程不退出
func NewConnectionRegistry(config RegistryConfig) *ConnectionRegistry {
	if config.StaleTimeout <= 0 {
		config.StaleTimeout = DefaultStaleTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionRegistry{
		config: config,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// GetOrCreate 获取或创建端点的连接
// 幂等: 同一新端点的并发调用只会创建一个 Connection,
// singleflight 保证同 key 的构造只执行一次
func (r *ConnectionRegistry) GetOrCreate(addr *net.UDPAddr) (*Connection, error) {
	if atomic.LoadInt32(&r.closed) == 1 {
		return nil, ErrRegistryClosed
	}

	key := addr.String()
	if v, ok := r.conns.Load(key); ok {
		return v.(*Connection), nil
	}

	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if v, ok := r.conns.Load(key); ok {
			return v, nil
		}
		conn := newConnection(addr, r.now)
		actual, loaded := r.conns.LoadOrStore(key, conn)
		if !loaded {
			atomic.AddUint64(&r.totalConns, 1)
			atomic.AddInt64(&r.activeConns, 1)
		}
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

// Get 获取已有连接, 不存在返回 nil
func (r *ConnectionRegistry) Get(addr *net.UDPAddr) *Connection {
	if v, ok := r.conns.Load(addr.String()); ok {
		return v.(*Connection)
	}
	return nil
}

// Remove 移除端点的连接
func (r *ConnectionRegistry) Remove(addr *net.UDPAddr) {
	if _, ok := r.conns.LoadAndDelete(addr.String()); ok {
		atomic.AddInt64(&r.activeConns, -1)
	}
}

// StartSweep 启动后台活性巡检
// 固定间隔运行, 与包处理并发; 重复调用只生效一次
func (r *ConnectionRegistry) StartSweep() {
	if !atomic.CompareAndSwapInt32(&r.sweeping, 0, 1) {
		return
	}

	r.wg.Add(1)
	go r.sweepLoop()
}

// sweepLoop 巡检循环, Close 时通过 ctx 退出
func (r *ConnectionRegistry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce()
		}
	}
}

// SweepOnce 执行一轮巡检, 返回本轮标记的静默端点数
// 每个连接只做一次快照读, 不跨整轮巡检持锁
// 导出给测试直接驱动, 无需真实时钟
func (r *ConnectionRegistry) SweepOnce() int {
	flagged := 0

	r.conns.Range(func(key, value interface{}) bool {
		conn := value.(*Connection)
		idle := conn.TimeSinceLastHeard()
		if idle >= r.config.StaleTimeout {
			flagged++
			if r.config.OnStale != nil {
				r.config.OnStale(conn.Addr(), idle)
			}
			if r.config.Evict {
				r.conns.Delete(key)
				atomic.AddInt64(&r.activeConns, -1)
			}
		}
		return true
	})

	if r.config.OnSweep != nil {
		r.config.OnSweep(flagged)
	}
	return flagged
}

// Endpoints 当前登记的所有端点地址
func (r *ConnectionRegistry) Endpoints() []*net.UDPAddr {
	var addrs []*net.UDPAddr
	r.conns.Range(func(_, value interface{}) bool {
		addrs = append(addrs, value.(*Connection).Addr())
		return true
	})
	return addrs
}

// ActiveConns 当前连接数
func (r *ConnectionRegistry) ActiveConns() int64 {
	return atomic.LoadInt64(&r.activeConns)
}

// TotalConns 累计创建过的连接数
func (r *ConnectionRegistry) TotalConns() uint64 {
	return atomic.LoadUint64(&r.totalConns)
}

// Close 关闭注册表: 停止巡检, 之后的 GetOrCreate 返回 ErrRegistryClosed
// 不影响已经取得的连接句柄上的在途操作
func (r *ConnectionRegistry) Close() {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return
	}
	r.cancel()
	r.wg.Wait()
}
