package hubclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/llmhub/llmhub-server/internal/provider"
)

func newClient(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	c, err := New(srv.URL+"/", opts)
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	return c
}

func userMessages(text string) []Message {
	return []Message{{Role: provider.RoleUser, Content: []ContentPart{{Type: "text", Text: text}}}}
}

func TestNewValidatesInput(t *testing.T) {
	if _, err := New("", Options{Provider: "openai", Model: "m"}); err == nil {
		t.Fatalf("empty base url should fail")
	}
	if _, err := New("http://localhost", Options{}); err == nil {
		t.Fatalf("missing provider/model should fail")
	}
}

func TestGenerateSendsPayloadAndReturnsText(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %s", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fmt.Fprint(w, `{"text":"hello","usage":{"totalTokens":9},"finishReason":"stop"}`)
	}))
	defer srv.Close()

	topP := 0.9
	c := newClient(t, srv, Options{TopP: &topP, RequestOverrides: map[string]any{"maxTokens": 64}})
	text, err := c.Generate(context.Background(), userMessages("hi"), CallOptions{
		ToolChoice: &ToolChoice{Mode: "none"},
	})
	if err != nil {
		t.Fatalf("Generate 失败: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text %q", text)
	}
	if payload["provider"] != "openai" || payload["temperature"] != 0.2 || payload["topP"] != 0.9 {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["maxTokens"] != float64(64) {
		t.Fatalf("overrides should win, got %v", payload["maxTokens"])
	}
	if payload["toolChoice"] != "none" {
		t.Fatalf("unexpected toolChoice %v", payload["toolChoice"])
	}
	if c.LastFinishReason() != "stop" || *c.LastUsage().TotalTokens != 9 {
		t.Fatalf("metadata not recorded")
	}
}

func TestGenerateToolCallsUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"toolCalls":[{"id":"c1","name":"lookup","argumentsJson":"{}"}],"finishReason":"tool_calls"}`)
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	_, err := c.Generate(context.Background(), userMessages("hi"), CallOptions{})
	if !errors.Is(err, ErrToolCallsUnsupported) {
		t.Fatalf("expected ErrToolCallsUnsupported, got %v", err)
	}
	if calls := c.LastToolCalls(); len(calls) != 1 || calls[0].Name != "lookup" {
		t.Fatalf("tool calls not recorded: %+v", calls)
	}
}

func TestGenerateNonJSONAndEmpty(t *testing.T) {
	responses := []struct{ body, want string }{
		{"plain text", "plain text"},
		{`"quoted"`, "quoted"},
		{`{}`, ""},
	}
	for _, tc := range responses {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, tc.body)
		}))
		c := newClient(t, srv, Options{})
		got, err := c.Generate(context.Background(), userMessages("hi"), CallOptions{})
		srv.Close()
		if err != nil {
			t.Fatalf("body %q: unexpected error %v", tc.body, err)
		}
		if got != tc.want {
			t.Fatalf("body %q: expected %q, got %q", tc.body, tc.want, got)
		}
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"kind":"rate_limit"}}`)
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	_, err := c.Generate(context.Background(), userMessages("hi"), CallOptions{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || !strings.Contains(httpErr.Body, "rate_limit") {
		t.Fatalf("unexpected error %+v", httpErr)
	}
}

func TestStreamGenerateCollectsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing Accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, ": keep-alive\n\n")
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"Hel\"}\n\n")
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"\"}\n\n")
		io.WriteString(w, "data: {\"type\":\"tool_call\",\"call\":{\"id\":\"1\",\"name\":\"x\",\"argumentsJson\":\"{}\"}}\n\n")
		io.WriteString(w, "data: raw-text\n\n")
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"lo\"}\n\n")
		io.WriteString(w, "data: {\"type\":\"message_end\",\"finishReason\":\"stop\",\"usage\":{\"outputTokens\":2}}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	var deltas []string
	err := c.StreamGenerate(context.Background(), userMessages("hi"), CallOptions{}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamGenerate 失败: %v", err)
	}
	if strings.Join(deltas, "|") != "Hel|raw-text|lo" {
		t.Fatalf("unexpected deltas %v", deltas)
	}
	if c.LastFinishReason() != "stop" || *c.LastUsage().OutputTokens != 2 {
		t.Fatalf("message_end metadata not recorded")
	}
}

func TestStreamGenerateMultiLineDataWithoutTrailingBlank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: line one\ndata: line two")
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	var got []string
	if err := c.StreamGenerate(context.Background(), userMessages("hi"), CallOptions{}, func(d string) error {
		got = append(got, d)
		return nil
	}); err != nil {
		t.Fatalf("StreamGenerate 失败: %v", err)
	}
	if len(got) != 1 || got[0] != "line one\nline two" {
		t.Fatalf("unexpected deltas %q", got)
	}
}

func TestStreamGenerateErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"a\"}\n\n")
		io.WriteString(w, "data: {\"type\":\"error\",\"error\":{\"kind\":\"upstream\",\"message\":\"reset\"}}\n\n")
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"never\"}\n\n")
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	var deltas []string
	err := c.StreamGenerate(context.Background(), userMessages("hi"), CallOptions{}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "reset") {
		t.Fatalf("expected stream error, got %v", err)
	}
	var perr *provider.Error
	if !errors.As(err, &perr) || perr.Kind != provider.KindUpstream {
		t.Fatalf("error should wrap provider error, got %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("reading should stop at error, got %v", deltas)
	}
}

func TestStreamGenerateCallbackAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"a\"}\n\n")
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"b\"}\n\n")
	}))
	defer srv.Close()

	stop := errors.New("stop")
	c := newClient(t, srv, Options{})
	err := c.StreamGenerate(context.Background(), userMessages("hi"), CallOptions{}, func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestStreamGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"kind":"validation"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	err := c.StreamGenerate(context.Background(), userMessages("hi"), CallOptions{}, func(string) error { return nil })
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 400 {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/provider-models" || r.URL.Query().Get("providers") != "openai,xai" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		fmt.Fprint(w, `[{"id":"gpt-4o","displayName":"gpt-4o","provider":"openai","capabilities":{"text":true}}]`)
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	models, err := c.ListModels(context.Background(), "openai", "xai")
	if err != nil {
		t.Fatalf("ListModels 失败: %v", err)
	}
	if len(models) != 1 || models[0].Provider != provider.OpenAI || !models[0].Capabilities.Text {
		t.Fatalf("unexpected models %+v", models)
	}
}

func TestStreamGenerateIdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"type\":\"delta\",\"textDelta\":\"a\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{Timeout: 100 * time.Millisecond})
	var deltas []string
	started := time.Now()
	err := c.StreamGenerate(context.Background(), userMessages("hi"), CallOptions{}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if !errors.Is(err, errStreamIdle) {
		t.Fatalf("expected idle timeout, got %v", err)
	}
	if time.Since(started) > 3*time.Second {
		t.Fatalf("timeout should fire promptly, took %s", time.Since(started))
	}
	if len(deltas) != 1 {
		t.Fatalf("delta before the stall should be delivered, got %v", deltas)
	}
}

func TestListModelsEscapesProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("providers"); got != "open ai&x=1,xai" {
			t.Errorf("providers not escaped, got %q", got)
		}
		if _, injected := q["x"]; injected {
			t.Errorf("query parameter injected: %v", q)
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newClient(t, srv, Options{})
	if _, err := c.ListModels(context.Background(), "open ai&x=1", "xai"); err != nil {
		t.Fatalf("ListModels 失败: %v", err)
	}
}
