package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/llmhub/llmhub-server/internal/logging"
	"github.com/llmhub/llmhub-server/internal/provider"
)

// RouteHandlers 提供三条 API 路由的处理函数，测试时可注入桩实现。
type RouteHandlers interface {
	Models() fiber.Handler
	Generate() fiber.Handler
	GenerateSSE() fiber.Handler
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Handlers   RouteHandlers
	BodyLimit  int64
	ListenPort int
}

const contextKeyRequestID = "_llmhub_request_id"

// NewApp builds the Fiber application with the JSON error handler, middleware
// chain and the three API routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Handlers == nil {
		return nil, errors.New("route handlers are required")
	}
	if opts.BodyLimit <= 0 {
		return nil, fmt.Errorf("invalid body limit: %d", opts.BodyLimit)
	}
	if opts.ListenPort <= 0 || opts.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		AppName:       "llmhub-server",
		CaseSensitive: true,
		BodyLimit:     int(opts.BodyLimit),
		ErrorHandler:  jsonErrorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	app.Get("/provider-models", opts.Handlers.Models())
	app.Post("/generate", requireJSON, opts.Handlers.Generate())
	app.Post("/generate/stream", requireJSON, opts.Handlers.GenerateSSE())

	return app, nil
}

// requestContextMiddleware 生成请求 ID，并在请求结束后输出一条访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := strings.TrimSpace(c.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFromError(err)
		}
		path := string(c.Request().URI().Path())
		fields := logging.RequestFields(path, "", "", reqID, status)
		fields["action"] = "access"
		fields["method"] = c.Method()
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		logger.WithFields(fields).Info("request handled")
		return err
	}
}

// requireJSON 拒绝非 JSON 的请求体，返回 415。
func requireJSON(c fiber.Ctx) error {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "content type must be application/json")
	}
	return c.Next()
}

type httpErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// jsonErrorHandler 将 Fiber 错误（404/405/413/415…）与未分类错误统一渲染为 JSON。
func jsonErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var perr *provider.Error
		if errors.As(err, &perr) {
			return c.Status(perr.HTTPStatus()).JSON(fiber.Map{"error": perr})
		}

		status := statusFromError(err)
		payload := httpErrorPayload{Kind: "http", Message: err.Error()}
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"action":     "unhandled_error",
				"request_id": RequestID(c),
			}).WithError(err).Error("request failed")
			payload.Kind = string(provider.KindUnknown)
		}
		return c.Status(status).JSON(fiber.Map{"error": payload})
	}
}

func statusFromError(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.HTTPStatus()
	}
	return fiber.StatusInternalServerError
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
