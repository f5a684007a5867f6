package xai

import (
	"testing"

	"github.com/llmhub/llmhub-server/internal/provider"
)

func TestXAIRegistered(t *testing.T) {
	meta, ok := provider.Resolve("grok")
	if !ok {
		t.Fatalf("xai provider should resolve through the grok alias")
	}
	if meta.DefaultBaseURL != DefaultBaseURL {
		t.Fatalf("unexpected base url %s", meta.DefaultBaseURL)
	}

	p, err := meta.Factory(provider.Settings{APIKey: "xai-test"}, nil)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	if p.ID() != provider.XAI {
		t.Fatalf("expected xai id, got %s", p.ID())
	}
}
