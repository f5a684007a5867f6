package openai

import (
	"encoding/json"
	"fmt"

	"github.com/llmhub/llmhub-server/internal/provider"
)

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Tools          []chatTool     `json:"tools,omitempty"`
	ToolChoice     any            `json:"tool_choice,omitempty"`
	ResponseFormat any            `json:"response_format,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	StreamOptions  *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string `json:"role"`
	Content    any    `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatTool struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   *string    `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type modelList struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

func buildChatRequest(input provider.GenerateInput) chatRequest {
	req := chatRequest{
		Model:       input.Model,
		Messages:    make([]chatMessage, 0, len(input.Messages)),
		Temperature: input.Temperature,
		TopP:        input.TopP,
		MaxTokens:   input.MaxTokens,
	}
	for _, msg := range input.Messages {
		req.Messages = append(req.Messages, convertMessage(msg))
	}
	for _, tool := range input.Tools {
		req.Tools = append(req.Tools, chatTool{
			Type: "function",
			Function: functionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	if tc := input.ToolChoice; tc != nil {
		if tc.Mode == "tool" {
			req.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]string{"name": tc.Name},
			}
		} else {
			req.ToolChoice = tc.Mode
		}
	}
	if rf := input.ResponseFormat; rf != nil {
		switch {
		case rf.Type == "json_schema" && rf.JSONSchema != nil:
			schema := map[string]any{
				"name":   rf.JSONSchema.Name,
				"schema": rf.JSONSchema.Schema,
			}
			if rf.JSONSchema.Strict {
				schema["strict"] = true
			}
			req.ResponseFormat = map[string]any{"type": "json_schema", "json_schema": schema}
		default:
			req.ResponseFormat = map[string]string{"type": rf.Type}
		}
	}
	return req
}

// convertMessage 纯文本消息压平成字符串，含图片时使用 parts 数组。
func convertMessage(msg provider.Message) chatMessage {
	out := chatMessage{
		Role:       string(msg.Role),
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}

	hasImage := false
	for _, part := range msg.Content {
		if part.Type == "image" {
			hasImage = true
			break
		}
	}
	if !hasImage {
		out.Content = msg.Text()
		return out
	}

	parts := make([]contentPart, 0, len(msg.Content))
	for _, part := range msg.Content {
		switch part.Type {
		case "text":
			parts = append(parts, contentPart{Type: "text", Text: part.Text})
		case "image":
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: imageSource(part.Image)}})
		}
	}
	out.Content = parts
	return out
}

func imageSource(img *provider.ImagePart) string {
	if img.URL != "" {
		return img.URL
	}
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, img.Base64)
}

func convertResponse(payload chatResponse) provider.GenerateOutput {
	var out provider.GenerateOutput
	if len(payload.Choices) > 0 {
		choice := payload.Choices[0]
		if choice.Message.Content != nil {
			out.Text = *choice.Message.Content
		}
		for _, call := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
				ID:            call.ID,
				Name:          call.Function.Name,
				ArgumentsJSON: call.Function.Arguments,
			})
		}
		out.FinishReason = choice.FinishReason
	}
	out.Usage = convertUsage(payload.Usage)
	return out
}

func convertUsage(u *usage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{
		InputTokens:  provider.IntPtr(u.PromptTokens),
		OutputTokens: provider.IntPtr(u.CompletionTokens),
		TotalTokens:  provider.IntPtr(u.TotalTokens),
	}
}
