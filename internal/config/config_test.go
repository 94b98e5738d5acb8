// =============================================================================
// 文件: internal/config/config_test.go
// 描述: 配置加载与校验测试
// =============================================================================
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("默认配置应通过校验: %v", err)
	}
	if cfg.GetListenPort() != 45000 {
		t.Errorf("默认端口 = %d, want 45000", cfg.GetListenPort())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen: ":50000"
mode: websocket
reliability:
  stale_timeout_sec: 30
  poll_interval_sec: 5
  evict_stale: true
websocket:
  listen: ":50001"
  path: /tunnel
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Mode != "websocket" {
		t.Errorf("mode = %q, want websocket", cfg.Mode)
	}
	if cfg.Reliability.StaleTimeoutSec != 30 || cfg.Reliability.PollIntervalSec != 5 {
		t.Errorf("可靠层配置未覆盖: %+v", cfg.Reliability)
	}
	if !cfg.Reliability.EvictStale {
		t.Errorf("evict_stale 未生效")
	}
	// 未出现的字段保留默认值
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9100" {
		t.Errorf("监控默认值丢失: %+v", cfg.Metrics)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Errorf("不存在的文件应失败")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("格式错误的 YAML 应失败")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"无效模式", func(c *Config) { c.Mode = "tcp" }},
		{"无效日志级别", func(c *Config) { c.LogLevel = "verbose" }},
		{"无效监听地址", func(c *Config) { c.Listen = "nonsense" }},
		{"巡检间隔为零", func(c *Config) { c.Reliability.PollIntervalSec = 0 }},
		{"巡检间隔超过阈值", func(c *Config) {
			c.Reliability.PollIntervalSec = 20
			c.Reliability.StaleTimeoutSec = 10
		}},
		{"心跳为负", func(c *Config) { c.Reliability.HeartbeatSec = -1 }},
		{"心跳不小于阈值", func(c *Config) {
			c.Reliability.HeartbeatSec = 10
			c.Reliability.StaleTimeoutSec = 10
		}},
		{"websocket 端口冲突", func(c *Config) {
			c.Mode = "websocket"
			c.WebSocket.Listen = c.Listen
		}},
		{"websocket 路径缺少斜杠", func(c *Config) {
			c.Mode = "websocket"
			c.WebSocket.Path = "dgram"
		}},
		{"监控端口冲突", func(c *Config) { c.Metrics.Listen = c.Listen }},
		{"监控路径缺少斜杠", func(c *Config) { c.Metrics.Path = "metrics" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("应校验失败")
			}
		})
	}
}

func TestGenerateExampleConfigRoundTrip(t *testing.T) {
	// 生成的示例必须本身就是可加载的合法配置
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := WriteExampleConfig(path); err != nil {
		t.Fatalf("写示例配置失败: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("示例配置加载失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("示例配置校验失败: %v", err)
	}
	if !strings.Contains(GenerateExampleConfig(), "stale_timeout_sec") {
		t.Errorf("示例缺少可靠层字段")
	}
}
