package config

import (
	"strings"
	"time"

	"github.com/llmhub/llmhub-server/internal/provider"
)

// Duration 由 durationDecodeHook 解析，兼容纯秒数与 Go Duration 字符串。
type Duration time.Duration

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述进程级运行参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	BodyLimit       int64    `mapstructure:"BodyLimit"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	ModelCacheTTL   Duration `mapstructure:"ModelCacheTTL"`
}

// ProviderConfig 是单个模型后端的凭证与连接参数。
type ProviderConfig struct {
	Name         string   `mapstructure:"Name"`
	APIKey       string   `mapstructure:"APIKey"`
	BaseURL      string   `mapstructure:"BaseURL"`
	Organization string   `mapstructure:"Organization"`
	Timeout      Duration `mapstructure:"Timeout"`
}

// Config 是环境变量与可选 TOML 文件合并后的整体结构，启动后只读。
type Config struct {
	Global    GlobalConfig     `mapstructure:",squash"`
	Providers []ProviderConfig `mapstructure:"Provider"`
}

// MaskedKey 只保留 key 末尾 4 位，供日志输出。
func (p ProviderConfig) MaskedKey() string {
	key := strings.TrimSpace(p.APIKey)
	if key == "" {
		return "<empty>"
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// ProviderNames 返回所有后端的规范化名称，例如 openai、xai。
func ProviderNames(providers []ProviderConfig) []string {
	if len(providers) == 0 {
		return nil
	}
	result := make([]string, len(providers))
	for i, p := range providers {
		result[i] = string(provider.Normalize(p.Name))
	}
	return result
}

// ProviderSettings 派生 Hub 需要的 provider → Settings 映射（假定 Validate 已通过）。
func (c *Config) ProviderSettings() map[provider.ID]provider.Settings {
	out := make(map[provider.ID]provider.Settings, len(c.Providers))
	for _, p := range c.Providers {
		out[provider.Normalize(p.Name)] = provider.Settings{
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			Organization: p.Organization,
			Timeout:      p.Timeout.DurationValue(),
		}
	}
	return out
}
