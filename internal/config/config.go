// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 载体选择、可靠层参数、巡检策略与监控端口校验
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 主配置
type Config struct {
	Listen   string `yaml:"listen"`
	Mode     string `yaml:"mode"`
	LogLevel string `yaml:"log_level"`

	Reliability ReliabilityConfig `yaml:"reliability"`
	Dedup       DedupConfig       `yaml:"dedup"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ReliabilityConfig 可靠层配置
type ReliabilityConfig struct {
	StaleTimeoutSec int  `yaml:"stale_timeout_sec"` // 静默多久判定端点失联
	PollIntervalSec int  `yaml:"poll_interval_sec"` // 活性巡检间隔
	EvictStale      bool `yaml:"evict_stale"`       // 巡检时是否移除失联连接 (默认只上报)
	HeartbeatSec    int  `yaml:"heartbeat_sec"`     // 心跳间隔, 0 关闭
}

// DedupConfig 重放抑制配置
type DedupConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WebSocketConfig WebSocket 载体配置
type WebSocketConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

// Load 读取并校验配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":45000",
		Mode:     "udp",
		LogLevel: "info",

		Reliability: ReliabilityConfig{
			StaleTimeoutSec: 10,
			PollIntervalSec: 1,
			EvictStale:      false,
			HeartbeatSec:    0,
		},

		Dedup: DedupConfig{
			Enabled: false,
		},

		WebSocket: WebSocketConfig{
			Listen: ":45001",
			Path:   "/dgram",
		},

		Metrics: MetricsConfig{
			Enabled:     true,
			Listen:      ":9100",
			Path:        "/metrics",
			HealthPath:  "/health",
			EnablePprof: false,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Mode {
	case "udp", "websocket":
	default:
		return fmt.Errorf("mode 必须是 udp 或 websocket: %q", c.Mode)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("无效的 log_level: %q", c.LogLevel)
	}

	mainPort, err := parsePort(c.Listen)
	if err != nil {
		return fmt.Errorf("listen 无效: %w", err)
	}

	if c.Reliability.StaleTimeoutSec < 1 {
		return fmt.Errorf("stale_timeout_sec 需不小于 1")
	}
	if c.Reliability.PollIntervalSec < 1 {
		return fmt.Errorf("poll_interval_sec 需不小于 1")
	}
	if c.Reliability.PollIntervalSec > c.Reliability.StaleTimeoutSec {
		return fmt.Errorf("poll_interval_sec (%d) 不应大于 stale_timeout_sec (%d)",
			c.Reliability.PollIntervalSec, c.Reliability.StaleTimeoutSec)
	}
	if c.Reliability.HeartbeatSec < 0 {
		return fmt.Errorf("heartbeat_sec 不能为负数")
	}
	if c.Reliability.HeartbeatSec > 0 && c.Reliability.HeartbeatSec >= c.Reliability.StaleTimeoutSec {
		return fmt.Errorf("heartbeat_sec (%d) 需小于 stale_timeout_sec (%d), 否则心跳等于没开",
			c.Reliability.HeartbeatSec, c.Reliability.StaleTimeoutSec)
	}

	// 端口冲突检测
	if c.Mode == "websocket" {
		wsPort, err := parsePort(c.WebSocket.Listen)
		if err != nil {
			return fmt.Errorf("websocket.listen 无效: %w", err)
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return fmt.Errorf("websocket.path 需以 / 开头: %q", c.WebSocket.Path)
		}
		if wsPort == mainPort {
			return fmt.Errorf("websocket.listen 与主监听端口冲突: %d", wsPort)
		}
	}

	if c.Metrics.Enabled {
		metricsPort, err := parsePort(c.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics.listen 无效: %w", err)
		}
		if metricsPort == mainPort {
			return fmt.Errorf("metrics.listen 与主监听端口冲突: %d", metricsPort)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path 需以 / 开头: %q", c.Metrics.Path)
		}
		if !strings.HasPrefix(c.Metrics.HealthPath, "/") {
			return fmt.Errorf("metrics.health_path 需以 / 开头: %q", c.Metrics.HealthPath)
		}
	}

	return nil
}

// parsePort 从 host:port 提取端口号
func parsePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("解析地址 %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("无效端口: %q", portStr)
	}
	return port, nil
}

// GetListenPort 主监听端口
func (c *Config) GetListenPort() int {
	port, _ := parsePort(c.Listen)
	return port
}

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# Mirage Node 配置文件示例
# =============================================================================

# 基础配置
listen: ":45000"                    # UDP 监听地址
mode: "udp"                         # 载体: udp, websocket
log_level: "info"                   # 日志级别: debug, info, warn, error

# 可靠层
reliability:
  stale_timeout_sec: 10             # 静默多久判定端点失联 (秒)
  poll_interval_sec: 1              # 活性巡检间隔 (秒)
  evict_stale: false                # 失联端点是否移除 (默认只上报)
  heartbeat_sec: 0                  # 心跳间隔 (秒), 0 关闭

# 重放抑制 (布隆过滤器, 低速链路适用)
dedup:
  enabled: false

# WebSocket 载体 (mode: websocket 时生效)
websocket:
  listen: ":45001"
  path: "/dgram"

# 监控
metrics:
  enabled: true
  listen: ":9100"                   # Prometheus 监听地址
  path: "/metrics"
  health_path: "/health"
  enable_pprof: false
`
}

// WriteExampleConfig 写出示例配置
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
