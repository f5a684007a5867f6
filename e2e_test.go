package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/llmhub/llmhub-server/pkg/hubclient"
)

// fakeOpenAI 模拟 /models 与 /chat/completions（阻塞与流式）。
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-e2e-0000" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
			return
		}
		switch r.URL.Path {
		case "/models":
			fmt.Fprint(w, `{"data":[{"id":"gpt-4o-mini","owned_by":"openai"},{"id":"text-embedding-3-small","owned_by":"openai"}]}`)
		case "/chat/completions":
			var req struct {
				Stream bool `json:"stream"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if !req.Stream {
				fmt.Fprint(w, `{"choices":[{"message":{"content":"pong"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"po\"}}]}\n\n")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ng\"}}]}\n\n")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
			io.WriteString(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"total_tokens\":5}}\n\n")
			io.WriteString(w, "data: [DONE]\n\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// serveOnLoopback 替换 listenApp，在随机端口上真正提供服务。
func serveOnLoopback(t *testing.T) <-chan string {
	t.Helper()
	addr := make(chan string, 1)
	prev := listenApp
	listenApp = func(app *fiber.App, _ int) error {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		addr <- "http://" + ln.Addr().String()
		go func() { _ = app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}) }()
		t.Cleanup(func() { _ = app.Shutdown() })
		return nil
	}
	t.Cleanup(func() { listenApp = prev })
	return addr
}

func TestEndToEndThroughClient(t *testing.T) {
	isolateEnv(t)
	upstream := fakeOpenAI(t)
	t.Setenv("OPENAI_API_KEY", "sk-e2e-0000")
	t.Setenv("OPENAI_BASE_URL", upstream.URL)
	useBufferWriters(t)
	addrCh := serveOnLoopback(t)

	if code := run(cliOptions{}); code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
	baseURL := <-addrCh

	client, err := hubclient.New(baseURL, hubclient.Options{Provider: "openai", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("hubclient.New 失败: %v", err)
	}
	ctx := context.Background()
	messages := []hubclient.Message{{Role: "user", Content: []hubclient.ContentPart{{Type: "text", Text: "ping"}}}}

	models, err := client.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels 失败: %v", err)
	}
	if len(models) != 1 || models[0].ID != "gpt-4o-mini" {
		t.Fatalf("embedding 模型应被过滤: %+v", models)
	}

	text, err := client.Generate(ctx, messages, hubclient.CallOptions{})
	if err != nil {
		t.Fatalf("Generate 失败: %v", err)
	}
	if text != "pong" || *client.LastUsage().TotalTokens != 4 {
		t.Fatalf("unexpected generate result %q usage=%+v", text, client.LastUsage())
	}

	var sb strings.Builder
	err = client.StreamGenerate(ctx, messages, hubclient.CallOptions{}, func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamGenerate 失败: %v", err)
	}
	if sb.String() != "pong" || client.LastFinishReason() != "stop" {
		t.Fatalf("unexpected stream result %q finish=%s", sb.String(), client.LastFinishReason())
	}

	resp, err := http.Get(baseURL + "/-/metrics")
	if err != nil {
		t.Fatalf("metrics 请求失败: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `llmhub_stream_chunks_total{provider="openai",type="delta"} 2`) {
		t.Fatalf("流式分片未计数:\n%s", body)
	}
}

func TestEndToEndUpstreamAuthFailure(t *testing.T) {
	isolateEnv(t)
	upstream := fakeOpenAI(t)
	t.Setenv("OPENAI_API_KEY", "sk-wrong")
	t.Setenv("OPENAI_BASE_URL", upstream.URL)
	useBufferWriters(t)
	addrCh := serveOnLoopback(t)

	if code := run(cliOptions{}); code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
	client, err := hubclient.New(<-addrCh, hubclient.Options{Provider: "openai", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("hubclient.New 失败: %v", err)
	}
	_, err = client.Generate(context.Background(), []hubclient.Message{{Role: "user", Content: []hubclient.ContentPart{{Type: "text", Text: "x"}}}}, hubclient.CallOptions{})
	httpErr, ok := err.(*hubclient.HTTPError)
	if !ok || httpErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 HTTPError, got %v", err)
	}
	if !strings.Contains(httpErr.Body, "provider_auth") {
		t.Fatalf("error body should carry kind: %s", httpErr.Body)
	}
}
