package hub

import (
	"context"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/llmhub/llmhub-server/internal/provider"
)

// maxParallelListing 限制同时请求上游 /models 的后端数量。
const maxParallelListing = 4

// ListModels 并发查询各后端模型列表并按后端顺序拼接。
// 部分后端失败时返回成功部分；全部失败时返回第一个错误。
func (h *Hub) ListModels(ctx context.Context, opts ListModelsOptions) ([]provider.ModelMetadata, error) {
	targets, err := h.lookup(opts.Providers)
	if err != nil {
		return nil, err
	}

	results := make([][]provider.ModelMetadata, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(maxParallelListing)
	for i, p := range targets {
		g.Go(func() error {
			models, err := h.providerModels(ctx, p, opts.Refresh)
			if err != nil {
				errs[i] = err
				h.logger.WithFields(logrus.Fields{
					"action":   "list_models",
					"provider": p.ID(),
				}).WithError(err).Warn("拉取模型列表失败")
				return nil
			}
			results[i] = models
			return nil
		})
	}
	_ = g.Wait()

	var (
		out      []provider.ModelMetadata
		firstErr error
		failures int
	)
	for i := range targets {
		if errs[i] != nil {
			failures++
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		out = append(out, results[i]...)
	}
	if failures == len(targets) && firstErr != nil {
		return nil, firstErr
	}
	if out == nil {
		out = []provider.ModelMetadata{}
	}
	return out, nil
}

func (h *Hub) providerModels(ctx context.Context, p provider.Provider, refresh bool) ([]provider.ModelMetadata, error) {
	key := string(p.ID())
	if h.models != nil && !refresh {
		if cached, ok := h.models.Get(key); ok {
			return cached.([]provider.ModelMetadata), nil
		}
	}

	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		if models[i].Provider == "" {
			models[i].Provider = p.ID()
		}
	}
	if h.models != nil {
		h.models.Set(key, models, cache.DefaultExpiration)
	}
	return models, nil
}
