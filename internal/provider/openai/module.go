// Package openai 实现基于 Chat Completions 的后端，同时作为 OpenAI 兼容后端（xAI 等）的共享实现。
package openai

import "github.com/llmhub/llmhub-server/internal/provider"

// DefaultBaseURL 是官方 API 入口，可通过 Settings.BaseURL 覆盖。
const DefaultBaseURL = "https://api.openai.com/v1"

func init() {
	provider.MustRegister(provider.Metadata{
		Key:            provider.OpenAI,
		Description:    "OpenAI Chat Completions provider with SSE streaming and tool calls",
		DefaultBaseURL: DefaultBaseURL,
		Factory:        NewCompatible(provider.OpenAI, DefaultBaseURL),
	})
}
