package hubclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/llmhub/llmhub-server/internal/provider"
)

// StreamGenerate 调用 POST /generate/stream，对每个非空文本增量调用 onDelta。
// onDelta 返回错误时中止读取并返回该错误；error 事件转换为 error 返回。
// Options.Timeout 作为空闲超时：连接建立或两次读取之间超过该时长即中止。
func (c *Client) StreamGenerate(ctx context.Context, messages []Message, call CallOptions, onDelta func(string) error) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := time.AfterFunc(c.opts.Timeout, func() { cancel(errStreamIdle) })
	defer idle.Stop()

	req, err := c.newGenerateRequest(ctx, "/generate/stream", messages, call)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.streamErr(ctx, "llmhub request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var buf []string
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		data := strings.Join(buf, "\n")
		buf = buf[:0]
		return c.handleEvent(data, onDelta)
	}

	for scanner.Scan() {
		idle.Reset(c.opts.Timeout)
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			buf = append(buf, strings.TrimLeft(line[len("data:"):], " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return c.streamErr(ctx, "llmhub stream read", err)
	}
	if errors.Is(context.Cause(ctx), errStreamIdle) {
		return fmt.Errorf("llmhub stream read: %w", errStreamIdle)
	}
	return flush()
}

var errStreamIdle = errors.New("hubclient: stream idle timeout")

func (c *Client) streamErr(ctx context.Context, op string, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errStreamIdle) {
		return fmt.Errorf("%s: %w", op, cause)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) handleEvent(data string, onDelta func(string) error) error {
	if strings.TrimSpace(data) == "[DONE]" {
		return nil
	}

	var chunk provider.StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// 非 JSON 的 data 视为纯文本增量
		return onDelta(data)
	}

	switch chunk.Type {
	case provider.ChunkDelta:
		if chunk.TextDelta == "" {
			return nil
		}
		return onDelta(chunk.TextDelta)
	case provider.ChunkMessageEnd:
		c.mu.Lock()
		c.lastUsage = chunk.Usage
		c.lastFinishReason = chunk.FinishReason
		c.mu.Unlock()
	case provider.ChunkError:
		if chunk.Error != nil {
			return fmt.Errorf("llmhub stream error: %w", chunk.Error)
		}
		return fmt.Errorf("llmhub stream error: %s", data)
	}
	return nil
}

