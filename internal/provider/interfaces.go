package provider

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ID 标识一个模型后端，例如 openai、xai。
type ID string

const (
	OpenAI    ID = "openai"
	Anthropic ID = "anthropic"
	Google    ID = "google"
	XAI       ID = "xai"
)

// providerAliases 兼容历史配置中的别名写法。
var providerAliases = map[string]ID{
	"gemini": Google,
	"grok":   XAI,
}

// Normalize 统一大小写与空白，并展开别名（gemini → google）。
func Normalize(raw string) ID {
	key := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := providerAliases[key]; ok {
		return alias
	}
	return ID(key)
}

// Settings 是单个后端的凭证与连接参数，由配置层派生后传入 Factory。
type Settings struct {
	APIKey       string
	BaseURL      string
	Organization string
	Timeout      time.Duration
}

// Provider 是 Hub 聚合的统一后端接口。
type Provider interface {
	ID() ID
	ListModels(ctx context.Context) ([]ModelMetadata, error)
	Generate(ctx context.Context, input GenerateInput) (GenerateOutput, error)
	// StreamGenerate 返回的 channel 以一个 message_end 或 error 块结尾后关闭。
	// 调用方取消 ctx 后，实现必须尽快关闭 channel。
	StreamGenerate(ctx context.Context, input GenerateInput) (<-chan StreamChunk, error)
}

// Factory 根据 Settings 与共享 http.Client 构造后端实例。
type Factory func(settings Settings, client *http.Client) (Provider, error)

// Metadata 记录一个后端的静态信息，供配置校验、Hub 构造和诊断端使用。
type Metadata struct {
	Key            ID
	Description    string
	DefaultBaseURL string
	Factory        Factory
}
