package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/llmhub/llmhub-server/internal/provider"
)

// Config 描述构建 Hub 所需的全部输入。
type Config struct {
	// Providers 是 provider → 凭证/连接参数，至少包含一项。
	Providers map[provider.ID]provider.Settings
	// ModelCacheTTL 为 0 时禁用模型列表缓存。
	ModelCacheTTL time.Duration
	// HTTPClient 由所有后端共享；为空时使用 http.DefaultClient。
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// ListModelsOptions 控制模型列表的范围与缓存行为。
type ListModelsOptions struct {
	// Providers 为空表示全部已配置后端。
	Providers []provider.ID
	// Refresh 跳过缓存直接请求上游。
	Refresh bool
}

// Hub 是多个 Provider 的统一门面。
type Hub struct {
	providers map[provider.ID]provider.Provider
	order     []provider.ID
	models    *cache.Cache
	cacheTTL  time.Duration
	logger    *logrus.Logger
}

// New 通过注册表为每个已配置后端构造实例，任一失败即返回错误。
func New(cfg Config) (*Hub, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("hub: no providers configured")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	h := &Hub{
		providers: make(map[provider.ID]provider.Provider, len(cfg.Providers)),
		cacheTTL:  cfg.ModelCacheTTL,
		logger:    logger,
	}
	if h.cacheTTL > 0 {
		h.models = cache.New(h.cacheTTL, 2*h.cacheTTL)
	}

	for rawID, settings := range cfg.Providers {
		id := provider.Normalize(string(rawID))
		meta, ok := provider.Resolve(string(id))
		if !ok {
			return nil, provider.NewError(provider.KindUnknownProvider, id, "provider %q is not registered", rawID)
		}
		if _, dup := h.providers[id]; dup {
			return nil, fmt.Errorf("hub: provider %s configured twice", id)
		}
		if settings.BaseURL == "" {
			settings.BaseURL = meta.DefaultBaseURL
		}
		p, err := meta.Factory(settings, client)
		if err != nil {
			return nil, fmt.Errorf("hub: build provider %s: %w", id, err)
		}
		h.providers[id] = p
		h.order = append(h.order, id)
	}
	sort.Slice(h.order, func(i, j int) bool { return h.order[i] < h.order[j] })

	logger.WithFields(logrus.Fields{
		"action":    "hub_ready",
		"providers": h.order,
		"cache_ttl": h.cacheTTL.String(),
	}).Debug("hub 初始化完成")
	return h, nil
}

// Providers 返回已配置后端 ID，按字母序。
func (h *Hub) Providers() []provider.ID {
	out := make([]provider.ID, len(h.order))
	copy(out, h.order)
	return out
}

// Generate 校验输入后分发到对应后端。
func (h *Hub) Generate(ctx context.Context, input provider.GenerateInput) (provider.GenerateOutput, error) {
	p, input, err := h.dispatch(input)
	if err != nil {
		return provider.GenerateOutput{}, err
	}
	return p.Generate(ctx, input)
}

// StreamGenerate 与 Generate 相同的校验与分发，返回后端的分片 channel。
func (h *Hub) StreamGenerate(ctx context.Context, input provider.GenerateInput) (<-chan provider.StreamChunk, error) {
	p, input, err := h.dispatch(input)
	if err != nil {
		return nil, err
	}
	return p.StreamGenerate(ctx, input)
}

func (h *Hub) dispatch(input provider.GenerateInput) (provider.Provider, provider.GenerateInput, error) {
	if err := provider.ValidateInput(input); err != nil {
		return nil, input, err
	}
	id := provider.Normalize(string(input.Provider))
	p, ok := h.providers[id]
	if !ok {
		return nil, input, provider.NewError(provider.KindUnknownProvider, id, "provider %q is not configured", input.Provider)
	}
	input.Provider = id
	return p, input, nil
}

func (h *Hub) lookup(ids []provider.ID) ([]provider.Provider, error) {
	if len(ids) == 0 {
		out := make([]provider.Provider, 0, len(h.order))
		for _, id := range h.order {
			out = append(out, h.providers[id])
		}
		return out, nil
	}

	seen := make(map[provider.ID]struct{}, len(ids))
	out := make([]provider.Provider, 0, len(ids))
	for _, raw := range ids {
		id := provider.Normalize(string(raw))
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, ok := h.providers[id]
		if !ok {
			return nil, provider.NewError(provider.KindUnknownProvider, id, "provider %q is not configured", raw)
		}
		out = append(out, p)
	}
	return out, nil
}
