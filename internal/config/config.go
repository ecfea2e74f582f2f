// Package config 负责加载和验证 YAML 配置文件。
// 提供后端接口地址、事件流订阅、输出等配置项；
// 认证令牌属于密钥，只从环境变量读取，不进入 YAML 文件。
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// API 后端 REST 接口配置
	API APIConfig `yaml:"api"`
	// Stream 事件流订阅配置
	Stream StreamConfig `yaml:"stream"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
	// Auth 认证配置（仅来自环境变量）
	Auth AuthConfig `yaml:"-"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// APIConfig 后端 REST 接口配置
type APIConfig struct {
	// BaseURL 后端基础地址，如 https://admin.example.com
	BaseURL string `yaml:"base_url"`
	// DealsPath 快照接口路径
	DealsPath string `yaml:"deals_path"`
	// Limit 快照拉取条数上限
	Limit int `yaml:"limit"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// RetryPayoutPath 打款重试接口路径模板，%s 为 Deal 标识占位
	RetryPayoutPath string `yaml:"retry_payout_path"`
}

// StreamConfig 事件流订阅配置
type StreamConfig struct {
	// URL 事件流订阅地址；为空时由 base_url 拼接默认路径
	URL string `yaml:"url"`
	// HandshakeTimeoutMs 订阅握手超时（毫秒），连接建立后不限时
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	// BufferSize 补丁输出通道缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// AuditEnabled 是否输出对账审计日志
	AuditEnabled bool `yaml:"audit_enabled"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// Token bearer 认证令牌（来自环境变量 RECONCILER_TOKEN）
	Token string
}

// envOverrides 环境变量覆盖项
// 密钥类配置只走环境变量，避免进入配置文件与版本库
type envOverrides struct {
	// Token bearer 认证令牌
	Token string `env:"RECONCILER_TOKEN"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析 YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 读取环境变量覆盖项
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("读取环境变量失败: %w", err)
	}
	cfg.Auth.Token = ov.Token

	// 设置默认值
	cfg.setDefaults()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	// 应用默认值
	if c.App.Name == "" {
		c.App.Name = "deal-reconciler"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	// REST 接口默认值
	if c.API.DealsPath == "" {
		c.API.DealsPath = "/internal/deals"
	}
	if c.API.Limit == 0 {
		c.API.Limit = 50
	}
	if c.API.TimeoutMs == 0 {
		c.API.TimeoutMs = 10000 // 10 秒
	}
	if c.API.RetryPayoutPath == "" {
		c.API.RetryPayoutPath = "/internal/payouts/offers/%s/retry_payout"
	}

	// 事件流默认值
	if c.Stream.URL == "" && c.API.BaseURL != "" {
		c.Stream.URL = strings.TrimRight(c.API.BaseURL, "/") + "/offers/events/deals"
	}
	if c.Stream.HandshakeTimeoutMs == 0 {
		c.Stream.HandshakeTimeoutMs = 10000 // 10 秒
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = 1000
	}

	// 输出默认值
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 验证 REST 接口配置
	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url: 后端基础地址不能为空")
	}
	if c.API.Limit <= 0 {
		errs = append(errs, fmt.Sprintf("api.limit: 拉取条数必须为正数，当前值: %d", c.API.Limit))
	}
	if c.API.TimeoutMs <= 0 {
		errs = append(errs, "api.timeout_ms: 请求超时必须为正数")
	}
	if !strings.Contains(c.API.RetryPayoutPath, "%s") {
		errs = append(errs, fmt.Sprintf("api.retry_payout_path: 路径模板必须包含 %%s 占位符，当前值: '%s'", c.API.RetryPayoutPath))
	}

	// 验证事件流配置
	if c.Stream.URL == "" {
		errs = append(errs, "stream.url: 事件流订阅地址不能为空")
	}
	if c.Stream.HandshakeTimeoutMs <= 0 {
		errs = append(errs, "stream.handshake_timeout_ms: 握手超时必须为正数")
	}
	if c.Stream.BufferSize <= 0 {
		errs = append(errs, "stream.buffer_size: 缓冲区大小必须为正数")
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
