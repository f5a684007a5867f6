package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/llmhub/llmhub-server/internal/provider"
)

const maxSSELine = 1 << 20

// streamState 汇总分片到达的 tool_calls、finish_reason 与 usage。
type streamState struct {
	calls        map[int]*provider.ToolCall
	finishReason string
	usage        *provider.Usage
}

func (s *streamState) apply(chunk chatChunk) []provider.StreamChunk {
	var out []provider.StreamChunk
	if chunk.Usage != nil {
		s.usage = convertUsage(chunk.Usage)
	}
	if len(chunk.Choices) == 0 {
		return out
	}
	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		out = append(out, provider.StreamChunk{Type: provider.ChunkDelta, TextDelta: choice.Delta.Content})
	}
	for _, frag := range choice.Delta.ToolCalls {
		call, ok := s.calls[frag.Index]
		if !ok {
			call = &provider.ToolCall{}
			s.calls[frag.Index] = call
		}
		if frag.ID != "" {
			call.ID = frag.ID
		}
		if frag.Function.Name != "" {
			call.Name = frag.Function.Name
		}
		call.ArgumentsJSON += frag.Function.Arguments
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.finishReason = *choice.FinishReason
	}
	return out
}

// tail 按 index 顺序输出累计的 tool_call，最后追加 message_end。
func (s *streamState) tail() []provider.StreamChunk {
	indexes := make([]int, 0, len(s.calls))
	for idx := range s.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]provider.StreamChunk, 0, len(indexes)+1)
	for _, idx := range indexes {
		call := *s.calls[idx]
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		out = append(out, provider.StreamChunk{Type: provider.ChunkToolCall, Call: &call})
	}
	out = append(out, provider.StreamChunk{
		Type:         provider.ChunkMessageEnd,
		Usage:        s.usage,
		FinishReason: s.finishReason,
	})
	return out
}

func (c *Client) pumpStream(ctx context.Context, body io.ReadCloser, out chan<- provider.StreamChunk) {
	defer close(out)
	defer body.Close()

	send := func(chunk provider.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		send(provider.StreamChunk{
			Type:  provider.ChunkError,
			Error: provider.WrapError(provider.KindUpstream, c.id, err),
		})
	}

	state := &streamState{calls: make(map[int]*provider.ToolCall)}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	for scanner.Scan() {
		data, ok := sseData(scanner.Text())
		if !ok {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			fail(fmt.Errorf("decode stream chunk: %w", err))
			return
		}
		for _, item := range state.apply(chunk) {
			if !send(item) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if isCanceled(ctx, err) {
			return
		}
		fail(err)
		return
	}

	for _, item := range state.tail() {
		if !send(item) {
			return
		}
	}
}

// sseData 提取 data: 行的内容，注释行与其它字段返回 false。
func sseData(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(line[len("data:"):]), true
}
