// Package handlers 将 Hub 的三个操作包装为 Fiber handler：
// 模型列表、阻塞生成与 SSE 流式生成。
package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/llmhub/llmhub-server/internal/hub"
	"github.com/llmhub/llmhub-server/internal/logging"
	"github.com/llmhub/llmhub-server/internal/metrics"
	"github.com/llmhub/llmhub-server/internal/provider"
	"github.com/llmhub/llmhub-server/internal/server"
)

const (
	routeModels   = "/provider-models"
	routeGenerate = "/generate"
	routeStream   = "/generate/stream"
)

// Hub 是 handler 依赖的最小能力集合，测试中可替换为假实现。
type Hub interface {
	ListModels(ctx context.Context, opts hub.ListModelsOptions) ([]provider.ModelMetadata, error)
	Generate(ctx context.Context, input provider.GenerateInput) (provider.GenerateOutput, error)
	StreamGenerate(ctx context.Context, input provider.GenerateInput) (<-chan provider.StreamChunk, error)
}

// Handlers 持有 Hub 与日志/指标依赖，按需生成 fiber.Handler。
type Handlers struct {
	hub     Hub
	logger  *logrus.Logger
	metrics *metrics.Recorder
}

// New 构造 handler 工厂；recorder 可以为 nil。
func New(h Hub, logger *logrus.Logger, recorder *metrics.Recorder) (*Handlers, error) {
	if h == nil {
		return nil, errors.New("hub is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Handlers{hub: h, logger: logger, metrics: recorder}, nil
}

// Models 处理 GET /provider-models，支持 providers=a,b 与 refresh=true。
func (h *Handlers) Models() fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		opts := hub.ListModelsOptions{
			Providers: parseProviders(c.Query("providers")),
			Refresh:   fiber.Query[bool](c, "refresh"),
		}

		models, err := h.hub.ListModels(c.Context(), opts)
		if err != nil {
			return h.fail(c, routeModels, "", "", started, err)
		}
		h.metrics.ObserveRequest(routeModels, "", fiber.StatusOK, time.Since(started))
		return c.JSON(models)
	}
}

// Generate 处理 POST /generate。
func (h *Handlers) Generate() fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		input, err := decodeInput(c)
		if err != nil {
			return h.fail(c, routeGenerate, "", "", started, err)
		}

		output, err := h.hub.Generate(c.Context(), input)
		if err != nil {
			return h.fail(c, routeGenerate, input.Provider, input.Model, started, err)
		}

		h.metrics.ObserveRequest(routeGenerate, string(provider.Normalize(string(input.Provider))), fiber.StatusOK, time.Since(started))
		return c.JSON(output)
	}
}

func decodeInput(c fiber.Ctx) (provider.GenerateInput, error) {
	var input provider.GenerateInput
	if len(c.Body()) == 0 {
		return input, provider.NewError(provider.KindValidation, "", "request body is required")
	}
	if err := c.Bind().JSON(&input); err != nil {
		return input, provider.WrapError(provider.KindValidation, "", err)
	}
	return input, nil
}

func parseProviders(raw string) []provider.ID {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []provider.ID
	for _, part := range strings.Split(raw, ",") {
		if id := provider.Normalize(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// errorBody 是所有错误响应的统一外层结构。
type errorBody struct {
	Error *provider.Error `json:"error"`
}

// fail 记录日志与指标，并以分类后的状态码返回 JSON 错误。
func (h *Handlers) fail(c fiber.Ctx, route string, providerID provider.ID, model string, started time.Time, err error) error {
	perr := provider.AsError(err)
	status := perr.HTTPStatus()
	id := string(provider.Normalize(string(providerID)))

	entry := h.logger.WithFields(logging.RequestFields(route, id, model, server.RequestID(c), status)).
		WithField("kind", perr.Kind)
	if status >= fiber.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.Warn(perr.Message)
	}

	h.metrics.ObserveRequest(route, id, status, time.Since(started))
	return c.Status(status).JSON(errorBody{Error: perr})
}
