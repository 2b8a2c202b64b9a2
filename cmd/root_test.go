package cmd

import (
	"testing"

	coreconfig "github.com/AzielCF/az-wap-sales/core/config"
	"github.com/stretchr/testify/assert"
)

func TestAPIKeyFor(t *testing.T) {
	cfg := &coreconfig.Config{
		AI:      coreconfig.AIConfig{Provider: "openai"},
		APIKeys: coreconfig.APIKeysConfig{OpenAI: "sk-openai", Gemini: "g-key", AI: "fallback"},
	}
	assert.Equal(t, "sk-openai", apiKeyFor(cfg))

	cfg.AI.Provider = "gemini"
	assert.Equal(t, "g-key", apiKeyFor(cfg))

	cfg.AI.Provider = "claude"
	assert.Equal(t, "fallback", apiKeyFor(cfg))
}
