package hubclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/llmhub/llmhub-server/internal/provider"
)

// 请求/响应类型与服务端保持一致。
type (
	Message        = provider.Message
	ContentPart    = provider.ContentPart
	ToolDefinition = provider.ToolDefinition
	ToolChoice     = provider.ToolChoice
	ResponseFormat = provider.ResponseFormat
	ToolCall       = provider.ToolCall
	Usage          = provider.Usage
	ModelMetadata  = provider.ModelMetadata
)

// ErrToolCallsUnsupported 表示响应只包含工具调用，没有文本。
var ErrToolCallsUnsupported = errors.New("hubclient: server returned toolCalls but tool execution is not supported")

// HTTPError 是非 2xx 响应，Body 为服务端原文。
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llmhub HTTPError %d: %s", e.StatusCode, e.Body)
}

// Options 配置客户端默认的生成参数。
type Options struct {
	Provider    string
	Model       string
	Temperature float64
	TopP        *float64
	MaxTokens   int
	Timeout     time.Duration
	// InsecureSkipVerify 仅对 https 生效。
	InsecureSkipVerify bool
	// RequestOverrides 在序列化后合并到请求体顶层。
	RequestOverrides map[string]any
	HTTPClient       *http.Client
}

// CallOptions 是单次调用的可选字段。
type CallOptions struct {
	Tools          []ToolDefinition
	ToolChoice     *ToolChoice
	ResponseFormat *ResponseFormat
}

// Client 调用 /generate、/generate/stream 与 /provider-models。
type Client struct {
	baseURL string
	opts    Options
	http    *http.Client

	mu               sync.Mutex
	lastUsage        *Usage
	lastFinishReason string
	lastToolCalls    []ToolCall
}

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 512
	defaultTimeout     = 60 * time.Second
)

// New 创建客户端；baseURL 末尾的 / 会被去掉。
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("hubclient: base url is required")
	}
	if opts.Provider == "" || opts.Model == "" {
		return nil, errors.New("hubclient: provider and model are required")
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify && strings.HasPrefix(baseURL, "https://") {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		hc = &http.Client{Transport: transport}
	}

	return &Client{baseURL: baseURL, opts: opts, http: hc}, nil
}

// LastUsage 返回最近一次调用的 token 用量（尽力而为）。
func (c *Client) LastUsage() *Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsage
}

// LastFinishReason 返回最近一次调用的结束原因。
func (c *Client) LastFinishReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFinishReason
}

// LastToolCalls 返回最近一次 Generate 收到的工具调用。
func (c *Client) LastToolCalls() []ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastToolCalls
}

// ListModels 调用 GET /provider-models。
func (c *Client) ListModels(ctx context.Context, providers ...string) ([]ModelMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	endpoint := c.baseURL + "/provider-models"
	if len(providers) > 0 {
		query := url.Values{}
		query.Set("providers", strings.Join(providers, ","))
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	var models []ModelMetadata
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, fmt.Errorf("hubclient: decode models: %w", err)
	}
	return models, nil
}

type generateResponse struct {
	Text         *string    `json:"text"`
	ToolCalls    []ToolCall `json:"toolCalls"`
	Usage        *Usage     `json:"usage"`
	FinishReason string     `json:"finishReason"`
}

// Generate 调用 POST /generate 并返回助手文本。
// 非 JSON 响应原样返回；只有工具调用时返回 ErrToolCallsUnsupported。
func (c *Client) Generate(ctx context.Context, messages []Message, call CallOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := c.newGenerateRequest(ctx, "/generate", messages, call)
	if err != nil {
		return "", err
	}
	body, err := c.roundTrip(req)
	if err != nil {
		return "", err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s, nil
		}
	}
	var out generateResponse
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return string(body), nil
	}

	c.mu.Lock()
	c.lastUsage = out.Usage
	c.lastFinishReason = out.FinishReason
	c.lastToolCalls = out.ToolCalls
	c.mu.Unlock()

	if out.Text != nil {
		return *out.Text, nil
	}
	if len(out.ToolCalls) > 0 {
		return "", ErrToolCallsUnsupported
	}
	return "", nil
}

func (c *Client) newGenerateRequest(ctx context.Context, path string, messages []Message, call CallOptions) (*http.Request, error) {
	payload := map[string]any{
		"provider":    c.opts.Provider,
		"model":       c.opts.Model,
		"messages":    messages,
		"temperature": c.opts.Temperature,
		"maxTokens":   c.opts.MaxTokens,
	}
	if c.opts.TopP != nil {
		payload["topP"] = *c.opts.TopP
	}
	if call.Tools != nil {
		payload["tools"] = call.Tools
	}
	if call.ToolChoice != nil {
		payload["toolChoice"] = call.ToolChoice
	}
	if call.ResponseFormat != nil {
		payload["responseFormat"] = call.ResponseFormat
	}
	for k, v := range c.opts.RequestOverrides {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("hubclient: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llmhub request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llmhub read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
