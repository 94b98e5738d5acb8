// =============================================================================
// 文件: cmd/mirage-node/main.go
// 描述: 主程序入口 - 组装载体、会话层、重放抑制与 Prometheus 指标
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/mrcgq/233/internal/config"
	"github.com/mrcgq/233/internal/dedup"
	"github.com/mrcgq/233/internal/metrics"
	"github.com/mrcgq/233/internal/transport"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
	startTime = time.Now()
)

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")
	mode := flag.String("mode", "", "载体: udp/websocket (覆盖配置文件)")
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("config.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: config.example.yaml")
		return
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	// 覆盖载体模式
	if *mode != "" {
		cfg.Mode = *mode
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建 Metrics 服务器
	var metricsServer *metrics.MetricsServer
	var mirageMetrics *metrics.MirageMetrics

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
			cfg.Metrics.EnablePprof,
		)
		mirageMetrics = metrics.New()
	}

	// 创建会话层
	regCfg := transport.RegistryConfig{
		StaleTimeout: time.Duration(cfg.Reliability.StaleTimeoutSec) * time.Second,
		PollInterval: time.Duration(cfg.Reliability.PollIntervalSec) * time.Second,
		Evict:        cfg.Reliability.EvictStale,
		OnStale: func(addr *net.UDPAddr, idle time.Duration) {
			fmt.Printf("[活性] 端点静默: %s (%.1fs)\n", addr, idle.Seconds())
			if mirageMetrics != nil {
				mirageMetrics.AddStaleFlagged(1)
			}
		},
		OnSweep: func(flagged int) {
			if mirageMetrics != nil {
				mirageMetrics.AddSweepRuns(1)
			}
		},
	}
	session := transport.NewSession(regCfg, mirageMetrics)
	defer session.Close()

	// 重放抑制
	var guard *dedup.Guard
	if cfg.Dedup.Enabled {
		guard = dedup.NewGuard()
		defer guard.Close()
	}

	// 注册 Prometheus 收集器
	if metricsServer != nil {
		collector := metrics.NewSessionCollector(session.Registry(), mirageMetrics)
		metricsServer.MustRegisterCollector(collector)

		metricsServer.SetHealthCheck(func() metrics.HealthStatus {
			return metrics.HealthStatus{
				Status:    "healthy",
				Timestamp: time.Now(),
				Version:   Version,
				Uptime:    time.Since(startTime),
				Components: map[string]metrics.ComponentHealth{
					"session": {Status: "healthy",
						Message: fmt.Sprintf("active=%d", session.Registry().ActiveConns())},
				},
			}
		})

		if err := metricsServer.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Metrics 启动失败: %v\n", err)
		}
	}

	h := &printHandler{}

	// 启动载体
	var car carrier
	switch cfg.Mode {
	case "udp":
		c := transport.NewUDPCarrier(cfg.Listen, session, h, guard, mirageMetrics)
		if err := c.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
			os.Exit(1)
		}
		car = c
		fmt.Printf("UDP 载体已启动: %s\n", cfg.Listen)

	case "websocket":
		c := transport.NewWSCarrier(cfg.WebSocket.Listen, cfg.WebSocket.Path, session, h, guard, mirageMetrics)
		if err := c.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
			os.Exit(1)
		}
		car = c
		fmt.Printf("WebSocket 载体已启动: %s%s\n", cfg.WebSocket.Listen, cfg.WebSocket.Path)
	}

	// 启动活性巡检
	session.StartLivenessMonitor()

	// 心跳: 静默前主动向所有已知端点发确认快照
	if cfg.Reliability.HeartbeatSec > 0 {
		go heartbeatLoop(ctx, car, session,
			time.Duration(cfg.Reliability.HeartbeatSec)*time.Second)
	}

	printBanner(cfg)

	// 等待信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\n正在关闭...")
	cancel()

	if metricsServer != nil {
		metricsServer.Stop()
	}
	car.Close()
}

// carrier 载体的公共面
type carrier interface {
	Send(transport.Message) error
	SendHeartbeat(addr *net.UDPAddr) error
	Close()
}

// heartbeatLoop 周期性向所有已登记端点发送心跳
func heartbeatLoop(ctx context.Context, car carrier, session *transport.Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, addr := range session.Registry().Endpoints() {
				if err := car.SendHeartbeat(addr); err != nil {
					fmt.Printf("[心跳] 发送失败 %s: %v\n", addr, err)
				}
			}
		}
	}
}

// printHandler 把交付和丢包事件打到标准输出 (示例用途)
type printHandler struct{}

func (h *printHandler) OnMessage(msg transport.Message) {
	fmt.Printf("[收到] %s: %d 字节\n", msg.Addr, len(msg.Payload))
}

func (h *printHandler) OnDropped(msgs []transport.Message) {
	for _, m := range msgs {
		fmt.Printf("[丢失] %s: %d 字节未被确认\n", m.Addr, len(m.Payload))
	}
}

func printVersion() {
	fmt.Printf("Mirage Node v%s\n", Version)
	fmt.Printf("  Build: %s\n", BuildTime)
	fmt.Printf("  Commit: %s\n", GitCommit)
	fmt.Printf("  Go: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("Mirage - UDP 可靠性与会话层")
	fmt.Printf("  模式: %s\n", cfg.Mode)
	fmt.Printf("  静默判定: %ds (巡检间隔 %ds, 移除: %v)\n",
		cfg.Reliability.StaleTimeoutSec, cfg.Reliability.PollIntervalSec, cfg.Reliability.EvictStale)
	if cfg.Metrics.Enabled {
		fmt.Printf("  指标: http://%s%s\n", cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	fmt.Println()
}
