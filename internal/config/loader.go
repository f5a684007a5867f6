package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/llmhub/llmhub-server/internal/provider"
)

const (
	// DefaultListenPort 在 PORT 未设置时使用。
	DefaultListenPort = 8787
	// DefaultBodyLimit 是请求体上限（10 MB）。
	DefaultBodyLimit = 10 * 1024 * 1024
)

// envBindings 列出所有读取的环境变量，key 为 viper 配置键。
var envBindings = map[string]string{
	"ListenPort":         "PORT",
	"LogLevel":           "LOG_LEVEL",
	"LogFilePath":        "LOG_FILE",
	"OpenAIAPIKey":       "OPENAI_API_KEY",
	"OpenAIBaseURL":      "OPENAI_BASE_URL",
	"OpenAIOrganization": "OPENAI_ORGANIZATION",
}

// LoadDotEnv 读取工作目录下的 .env（若存在），不会覆盖已有环境变量。
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	return godotenv.Load(files...)
}

// Load 合并默认值、可选的 TOML 文件与环境变量，并在返回前完成校验。
// path 为空时仅使用环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	// 端口先于 Unmarshal 单独解析，保证 PORT=abc 得到明确的字段错误。
	port, err := parseListenPort(v.GetString("ListenPort"))
	if err != nil {
		return nil, err
	}
	v.Set("ListenPort", port)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyOpenAIEnv(v, &cfg)
	for i := range cfg.Providers {
		applyProviderDefaults(&cfg.Providers[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("BodyLimit", DefaultBodyLimit)
	v.SetDefault("UpstreamTimeout", "60s")
	v.SetDefault("ModelCacheTTL", "10m")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.BodyLimit == 0 {
		g.BodyLimit = DefaultBodyLimit
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(60 * time.Second)
	}
}

// applyOpenAIEnv 保证 openai 后端始终存在，并用 OPENAI_* 环境变量覆盖文件中的值。
func applyOpenAIEnv(v *viper.Viper, cfg *Config) {
	idx := -1
	for i := range cfg.Providers {
		if provider.Normalize(cfg.Providers[i].Name) == provider.OpenAI {
			idx = i
			break
		}
	}
	if idx < 0 {
		cfg.Providers = append([]ProviderConfig{{Name: string(provider.OpenAI)}}, cfg.Providers...)
		idx = 0
	}

	target := &cfg.Providers[idx]
	if key := strings.TrimSpace(v.GetString("OpenAIAPIKey")); key != "" {
		target.APIKey = key
	}
	if base := strings.TrimSpace(v.GetString("OpenAIBaseURL")); base != "" {
		target.BaseURL = base
	}
	if org := strings.TrimSpace(v.GetString("OpenAIOrganization")); org != "" {
		target.Organization = org
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	p.Name = string(provider.Normalize(p.Name))
	p.APIKey = strings.TrimSpace(p.APIKey)
	p.BaseURL = strings.TrimSpace(p.BaseURL)
	if p.Timeout.DurationValue() < 0 {
		p.Timeout = Duration(0)
	}
}

func parseListenPort(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultListenPort, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, newFieldError("Global.ListenPort", fmt.Sprintf("无法解析端口 %q", raw))
	}
	return port, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
