package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/llmhub/llmhub-server/internal/config"
	"github.com/llmhub/llmhub-server/internal/metrics"
	"github.com/llmhub/llmhub-server/internal/provider"
)

// DiagnosticsOptions 汇总 /-/ 诊断接口需要的只读数据。
type DiagnosticsOptions struct {
	Providers []config.ProviderConfig
	Metrics   *metrics.Recorder
}

// RegisterDiagnostics 暴露 /-/providers 与 /-/metrics，供运维查询后端绑定与指标。
func RegisterDiagnostics(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil {
		return
	}

	app.Get("/-/providers", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"configured": encodeConfigured(opts.Providers),
			"registered": encodeRegistered(provider.List()),
		})
	})

	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}
}

type configuredPayload struct {
	Name         string `json:"name"`
	BaseURL      string `json:"base_url"`
	Organization string `json:"organization,omitempty"`
	APIKey       string `json:"api_key"`
	TimeoutSec   int64  `json:"timeout_seconds,omitempty"`
}

type registeredPayload struct {
	Key            string `json:"key"`
	Description    string `json:"description"`
	DefaultBaseURL string `json:"default_base_url"`
}

// encodeConfigured 只输出脱敏后的 key；未显式配置 BaseURL 时回落到注册表默认值。
func encodeConfigured(providers []config.ProviderConfig) []configuredPayload {
	result := make([]configuredPayload, 0, len(providers))
	for _, p := range providers {
		baseURL := p.BaseURL
		if baseURL == "" {
			if meta, ok := provider.Resolve(p.Name); ok {
				baseURL = meta.DefaultBaseURL
			}
		}
		result = append(result, configuredPayload{
			Name:         string(provider.Normalize(p.Name)),
			BaseURL:      baseURL,
			Organization: p.Organization,
			APIKey:       p.MaskedKey(),
			TimeoutSec:   int64(p.Timeout.DurationValue().Seconds()),
		})
	}
	return result
}

func encodeRegistered(mods []provider.Metadata) []registeredPayload {
	result := make([]registeredPayload, 0, len(mods))
	for _, meta := range mods {
		result = append(result, registeredPayload{
			Key:            string(meta.Key),
			Description:    meta.Description,
			DefaultBaseURL: meta.DefaultBaseURL,
		})
	}
	return result
}
