package config

import (
	_ "github.com/llmhub/llmhub-server/internal/provider/openai"
	_ "github.com/llmhub/llmhub-server/internal/provider/xai"
)
