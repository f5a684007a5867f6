// Package xai 注册 xAI（Grok）后端，协议与 OpenAI Chat Completions 兼容。
package xai

import (
	"github.com/llmhub/llmhub-server/internal/provider"
	"github.com/llmhub/llmhub-server/internal/provider/openai"
)

// DefaultBaseURL 是 xAI 的 API 入口。
const DefaultBaseURL = "https://api.x.ai/v1"

func init() {
	provider.MustRegister(provider.Metadata{
		Key:            provider.XAI,
		Description:    "xAI Grok provider over the OpenAI-compatible API",
		DefaultBaseURL: DefaultBaseURL,
		Factory:        openai.NewCompatible(provider.XAI, DefaultBaseURL),
	})
}
