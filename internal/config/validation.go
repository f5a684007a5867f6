package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/llmhub/llmhub-server/internal/provider"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.BodyLimit <= 0 {
		return newFieldError("Global.BodyLimit", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.ModelCacheTTL.DurationValue() < 0 {
		return newFieldError("Global.ModelCacheTTL", "不能为负数")
	}

	if len(c.Providers) == 0 {
		return errors.New("至少需要配置一个 Provider")
	}

	seen := map[provider.ID]struct{}{}
	for i := range c.Providers {
		p := &c.Providers[i]
		id := provider.Normalize(p.Name)
		if id == "" {
			return newFieldError("Provider[].Name", "不能为空")
		}
		if _, exists := seen[id]; exists {
			return newFieldError(providerField(p.Name, "Name"), "重复")
		}
		seen[id] = struct{}{}

		if _, ok := provider.Resolve(string(id)); !ok {
			return newFieldError(providerField(p.Name, "Name"), "未注册的 provider，仅支持 "+supportedProviderList())
		}
		p.Name = string(id)

		if strings.TrimSpace(p.APIKey) == "" {
			if id == provider.OpenAI {
				return newFieldError(providerField(p.Name, "APIKey"), "不能为空（设置 OPENAI_API_KEY）")
			}
			return newFieldError(providerField(p.Name, "APIKey"), "不能为空")
		}
		if p.BaseURL != "" {
			if err := validateBaseURL(p.BaseURL); err != nil {
				return fmt.Errorf("%s: %w", providerField(p.Name, "BaseURL"), err)
			}
		}
	}

	return nil
}

func supportedProviderList() string {
	keys := provider.Keys()
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = string(key)
	}
	return strings.Join(parts, "|")
}

func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
