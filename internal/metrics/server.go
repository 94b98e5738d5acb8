// =============================================================================
// 文件: internal/metrics/server.go
// 描述: 指标与健康检查 HTTP 服务 - Prometheus 格式 + 存活/就绪探针
// =============================================================================
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus 整体健康状态, /health 端点以 JSON 返回
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth 单个组件的健康状态
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthy / degraded 都视为可服务, 其余状态让就绪探针摘流量
func (s HealthStatus) serviceable() bool {
	return s.Status == "healthy" || s.Status == "degraded"
}

// MetricsServer 指标服务器
// 使用独立的 prometheus.Registry, 不碰全局默认注册表
type MetricsServer struct {
	addr        string
	metricsPath string
	healthPath  string
	enablePprof bool

	registry   *prometheus.Registry
	httpServer *http.Server

	mu          sync.RWMutex
	healthCheck func() HealthStatus
}

// NewMetricsServer 创建指标服务器, 自带 Go 运行时和进程收集器
func NewMetricsServer(addr, metricsPath, healthPath string, enablePprof bool) *MetricsServer {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsServer{
		addr:        addr,
		metricsPath: metricsPath,
		healthPath:  healthPath,
		enablePprof: enablePprof,
		registry:    registry,
	}
}

// MustRegisterCollector 注册业务收集器, 重复注册 panic
func (s *MetricsServer) MustRegisterCollector(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

// SetHealthCheck 设置健康检查函数, 未设置时探针一律按就绪处理
func (s *MetricsServer) SetHealthCheck(fn func() HealthStatus) {
	s.mu.Lock()
	s.healthCheck = fn
	s.mu.Unlock()
}

func (s *MetricsServer) check() (HealthStatus, bool) {
	s.mu.RLock()
	fn := s.healthCheck
	s.mu.RUnlock()

	if fn == nil {
		return HealthStatus{}, false
	}
	return fn(), true
}

// Start 启动 HTTP 服务, 监听失败只打日志 (指标不可用不应拖垮数据面)
func (s *MetricsServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.healthPath, s.handleHealth)
	mux.HandleFunc(s.healthPath+"/live", s.handleLiveness)
	mux.HandleFunc(s.healthPath+"/ready", s.handleReadiness)
	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))

	if s.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[Metrics] 服务器错误: %v\n", err)
		}
	}()

	return nil
}

// handleHealth 完整健康报告, 不健康时退 503 但仍带 JSON 详情
func (s *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, ok := s.check()
	if !ok {
		status = HealthStatus{Status: "healthy", Timestamp: time.Now()}
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// handleLiveness 存活探针: 能应答即存活
func (s *MetricsServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleReadiness 就绪探针: healthy/degraded 可收流量, 其余 503
func (s *MetricsServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if status, ok := s.check(); ok && !status.serviceable() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Stop 优雅停止, 最多等 5 秒
func (s *MetricsServer) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
