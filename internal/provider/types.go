package provider

import "encoding/json"

// Role 取值 system|user|assistant|tool。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart 是消息中的一个片段，目前支持 text 与 image 两类。
type ContentPart struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Image *ImagePart `json:"image,omitempty"`
}

// ImagePart 描述图片输入，URL 与 Base64 二选一。
type ImagePart struct {
	URL       string `json:"url,omitempty"`
	Base64    string `json:"base64,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Message 对应 llmhub-node 的聊天消息形状。
type Message struct {
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"`
}

// Text 拼接消息内所有文本片段。
func (m Message) Text() string {
	var out []byte
	for _, part := range m.Content {
		if part.Type == "text" {
			out = append(out, part.Text...)
		}
	}
	return string(out)
}

// ToolDefinition 声明一个可供模型调用的函数。
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoice 可以是 "auto"/"none"/"required" 字符串，或 {"type":"tool","name":"..."}。
type ToolChoice struct {
	Mode string
	Name string
}

// UnmarshalJSON 同时兼容字符串与对象两种写法。
func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		*t = ToolChoice{Mode: mode}
		return nil
	}
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = ToolChoice{Mode: obj.Type, Name: obj.Name}
	return nil
}

// MarshalJSON 与 UnmarshalJSON 对称输出。
func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Mode == "tool" {
		return json.Marshal(map[string]string{"type": "tool", "name": t.Name})
	}
	return json.Marshal(t.Mode)
}

// ResponseFormat 控制输出格式，json_schema 时需携带 JSONSchema。
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"jsonSchema,omitempty"`
}

// JSONSchema 描述结构化输出的约束。
type JSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

// GenerateInput 是 /generate 与 /generate/stream 的请求体。
type GenerateInput struct {
	Provider       ID                `json:"provider"`
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Tools          []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice     *ToolChoice       `json:"toolChoice,omitempty"`
	ResponseFormat *ResponseFormat   `json:"responseFormat,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	TopP           *float64          `json:"topP,omitempty"`
	MaxTokens      *int              `json:"maxTokens,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ToolCall 是模型请求调用的函数及其 JSON 参数。
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"argumentsJson"`
}

// Usage 记录 token 用量，缺失的字段保持 nil。
type Usage struct {
	InputTokens  *int `json:"inputTokens,omitempty"`
	OutputTokens *int `json:"outputTokens,omitempty"`
	TotalTokens  *int `json:"totalTokens,omitempty"`
}

// GenerateOutput 是 /generate 的响应体。
type GenerateOutput struct {
	Text         string     `json:"text,omitempty"`
	ToolCalls    []ToolCall `json:"toolCalls,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
	FinishReason string     `json:"finishReason,omitempty"`
}

// ChunkType 区分流式块。
type ChunkType string

const (
	ChunkDelta      ChunkType = "delta"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkMessageEnd ChunkType = "message_end"
	ChunkError      ChunkType = "error"
)

// StreamChunk 是 SSE 中单个 data 事件的 JSON 内容。
type StreamChunk struct {
	Type         ChunkType `json:"type"`
	TextDelta    string    `json:"textDelta,omitempty"`
	Call         *ToolCall `json:"call,omitempty"`
	Usage        *Usage    `json:"usage,omitempty"`
	FinishReason string    `json:"finishReason,omitempty"`
	Error        *Error    `json:"error,omitempty"`
}

// Terminal 表示该块之后流即结束。
func (c StreamChunk) Terminal() bool {
	return c.Type == ChunkMessageEnd || c.Type == ChunkError
}

// ModelCapabilities 标记模型能力，供前端筛选。
type ModelCapabilities struct {
	Text             bool `json:"text"`
	Vision           bool `json:"vision"`
	ToolUse          bool `json:"tool_use"`
	StructuredOutput bool `json:"structured_output"`
	Reasoning        bool `json:"reasoning"`
}

// ModelMetadata 是 /provider-models 列表中的单项。
type ModelMetadata struct {
	ID            string            `json:"id"`
	DisplayName   string            `json:"displayName"`
	Provider      ID                `json:"provider"`
	Family        string            `json:"family,omitempty"`
	Capabilities  ModelCapabilities `json:"capabilities"`
	ContextWindow int               `json:"contextWindow,omitempty"`
}

// IntPtr 便于构造可选的整数字段。
func IntPtr(v int) *int {
	return &v
}
