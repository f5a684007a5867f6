package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/llmhub/llmhub-server/internal/provider"
)

const (
	defaultTimeout   = 60 * time.Second
	maxErrorBodySize = 64 << 10
)

// Client 通过 OpenAI 兼容协议访问上游，阻塞请求与流式请求使用不同的超时策略。
type Client struct {
	id           provider.ID
	apiKey       string
	baseURL      string
	organization string
	client       *http.Client
	streamClient *http.Client
}

// NewCompatible 返回一个 Factory，用于注册任意 OpenAI 兼容后端。
func NewCompatible(id provider.ID, defaultBaseURL string) provider.Factory {
	return func(settings provider.Settings, httpClient *http.Client) (provider.Provider, error) {
		return New(id, defaultBaseURL, settings, httpClient)
	}
}

// New 构造客户端；APIKey 为空时直接返回错误，避免把缺失凭证推迟到请求阶段。
func New(id provider.ID, defaultBaseURL string, settings provider.Settings, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", id)
	}
	base := strings.TrimSpace(settings.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	blocking := *httpClient
	if settings.Timeout > 0 {
		blocking.Timeout = settings.Timeout
	} else if blocking.Timeout == 0 {
		blocking.Timeout = defaultTimeout
	}
	// 流式响应的总时长不可预知，只依赖 ctx 取消。
	streaming := *httpClient
	streaming.Timeout = 0

	return &Client{
		id:           id,
		apiKey:       settings.APIKey,
		baseURL:      strings.TrimRight(base, "/"),
		organization: settings.Organization,
		client:       &blocking,
		streamClient: &streaming,
	}, nil
}

// ID 实现 provider.Provider。
func (c *Client) ID() provider.ID {
	return c.id
}

// ListModels 拉取 /models 并过滤掉非对话模型。
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelMetadata, error) {
	resp, err := c.do(ctx, c.client, http.MethodGet, "/models", nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload modelList
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, provider.WrapError(provider.KindUpstream, c.id, fmt.Errorf("decode models: %w", err))
	}

	models := make([]provider.ModelMetadata, 0, len(payload.Data))
	for _, item := range payload.Data {
		if !isChatModel(item.ID) {
			continue
		}
		models = append(models, describeModel(c.id, item.ID))
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})
	return models, nil
}

// Generate 执行一次阻塞式补全。
func (c *Client) Generate(ctx context.Context, input provider.GenerateInput) (provider.GenerateOutput, error) {
	req := buildChatRequest(input)
	resp, err := c.do(ctx, c.client, http.MethodPost, "/chat/completions", req, "application/json")
	if err != nil {
		return provider.GenerateOutput{}, err
	}
	defer resp.Body.Close()

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return provider.GenerateOutput{}, provider.WrapError(provider.KindUpstream, c.id, fmt.Errorf("decode completion: %w", err))
	}
	return convertResponse(payload), nil
}

// StreamGenerate 发起 stream=true 请求，并在后台 goroutine 中解析 SSE。
func (c *Client) StreamGenerate(ctx context.Context, input provider.GenerateInput) (<-chan provider.StreamChunk, error) {
	req := buildChatRequest(input)
	req.Stream = true
	req.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/chat/completions", req, "text/event-stream")
	if err != nil {
		return nil, err
	}

	out := make(chan provider.StreamChunk)
	go c.pumpStream(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, provider.WrapError(provider.KindUnknown, c.id, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, provider.WrapError(provider.KindUnknown, c.id, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, provider.WrapError(provider.KindUpstream, c.id, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, provider.ErrorFromStatus(c.id, resp.StatusCode, upstreamMessage(data))
	}
	return resp, nil
}

// upstreamMessage 优先提取 {"error":{"message":...}}，否则返回原始正文。
func upstreamMessage(data []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
