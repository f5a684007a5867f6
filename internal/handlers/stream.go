package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/llmhub/llmhub-server/internal/logging"
	"github.com/llmhub/llmhub-server/internal/provider"
	"github.com/llmhub/llmhub-server/internal/server"
)

var doneEvent = []byte("data: [DONE]\n\n")

// GenerateSSE 处理 POST /generate/stream。
// 校验失败或上游无法建立流时返回 JSON 错误；否则逐块写出 SSE 事件并以 [DONE] 结束。
func (h *Handlers) GenerateSSE() fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		input, err := decodeInput(c)
		if err != nil {
			return h.fail(c, routeStream, "", "", started, err)
		}

		// 流的生命周期跨越 handler 返回，不能绑定在请求 ctx 上
		ctx, cancel := context.WithCancel(context.Background())
		chunks, err := h.hub.StreamGenerate(ctx, input)
		if err != nil {
			cancel()
			return h.fail(c, routeStream, input.Provider, input.Model, started, err)
		}

		providerID := string(provider.Normalize(string(input.Provider)))
		requestID := server.RequestID(c)
		h.metrics.ObserveRequest(routeStream, providerID, fiber.StatusOK, time.Since(started))

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		return c.SendStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			count, finish := 0, ""
			for chunk := range chunks {
				if err := writeEvent(w, chunk); err != nil {
					h.logger.WithFields(logging.StreamFields(providerID, input.Model, requestID, count, "client_gone")).
						WithError(err).Debug("client disconnected")
					return
				}
				count++
				h.metrics.ObserveChunk(providerID, string(chunk.Type))
				// 终止块之后的内容不再转发
				if chunk.Terminal() {
					finish = chunk.FinishReason
					if chunk.Type == provider.ChunkError {
						finish = "error"
					}
					break
				}
			}
			if _, err := w.Write(doneEvent); err == nil {
				_ = w.Flush()
			}
			h.logger.WithFields(logging.StreamFields(providerID, input.Model, requestID, count, finish)).Info("stream finished")
		})
	}
}

func writeEvent(w *bufio.Writer, chunk provider.StreamChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
