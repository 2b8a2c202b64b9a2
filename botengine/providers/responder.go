package providers

import (
	"fmt"
	"strings"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"

	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"

	defaultSystemPrompt = "You are a friendly sales assistant answering WhatsApp customers. Reply briefly, in the customer's language."
)

type Options struct {
	Provider     string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int64
}

// NewResponder picks the AI backend that generates automated replies.
func NewResponder(opts Options) (domainConversation.IResponder, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, pkgError.ValidationError(fmt.Sprintf("%s: missing API key", opts.Provider))
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}

	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderGemini:
		return NewGeminiResponder(opts), nil
	case ProviderOpenAI:
		return NewOpenAIResponder(opts), nil
	case ProviderClaude, "anthropic":
		return NewClaudeResponder(opts), nil
	default:
		return nil, pkgError.ValidationError(fmt.Sprintf("unknown AI provider: %q", opts.Provider))
	}
}

// systemPrompt adds what we know about the customer to the configured prompt.
func systemPrompt(base string, meta domainConversation.SenderMetadata) string {
	if strings.TrimSpace(meta.PushName) == "" {
		return base
	}
	return base + "\n\nCustomer name: " + meta.PushName
}
