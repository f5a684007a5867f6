package openai

import (
	"strings"

	"github.com/llmhub/llmhub-server/internal/provider"
)

// nonChatMarkers 命中任一片段的模型不支持 chat/completions。
var nonChatMarkers = []string{
	"embedding", "whisper", "tts", "dall-e", "moderation",
	"davinci", "babbage", "transcribe", "realtime", "audio", "image",
}

var knownFamilies = []string{
	"gpt-4.1", "gpt-4o", "gpt-4", "gpt-3.5", "gpt-5",
	"o1", "o3", "o4", "grok-4", "grok-3", "grok-2",
}

func isChatModel(id string) bool {
	lower := strings.ToLower(id)
	for _, marker := range nonChatMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// describeModel 基于模型 ID 推断家族与能力；上游 /models 不返回这些信息。
func describeModel(id provider.ID, model string) provider.ModelMetadata {
	lower := strings.ToLower(model)
	family := ""
	for _, candidate := range knownFamilies {
		if strings.HasPrefix(lower, candidate) {
			family = candidate
			break
		}
	}

	reasoning := strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") ||
		strings.HasPrefix(lower, "o4") || strings.HasPrefix(lower, "gpt-5") ||
		strings.Contains(lower, "reasoning")
	modern := strings.HasPrefix(lower, "gpt-4o") || strings.HasPrefix(lower, "gpt-4.1") ||
		strings.HasPrefix(lower, "gpt-5") || strings.HasPrefix(lower, "grok-")

	return provider.ModelMetadata{
		ID:          model,
		DisplayName: model,
		Provider:    id,
		Family:      family,
		Capabilities: provider.ModelCapabilities{
			Text:             true,
			Vision:           modern || strings.Contains(lower, "vision"),
			ToolUse:          !strings.Contains(lower, "instruct"),
			StructuredOutput: modern || reasoning,
			Reasoning:        reasoning,
		},
	}
}
