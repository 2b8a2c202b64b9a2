package providers

import (
	"context"
	"fmt"
	"strings"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
)

const defaultClaudeMaxTokens = 1024

// ClaudeResponder generates replies with the Anthropic Messages API.
type ClaudeResponder struct {
	client       anthropic.Client
	model        anthropic.Model
	maxTokens    int64
	systemPrompt string
}

func NewClaudeResponder(opts Options) *ClaudeResponder {
	model := anthropic.ModelClaude3_5Sonnet20241022
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	return &ClaudeResponder{
		client:       anthropic.NewClient(option.WithAPIKey(opts.APIKey)),
		model:        model,
		maxTokens:    maxTokens,
		systemPrompt: opts.SystemPrompt,
	}
}

func (p *ClaudeResponder) GenerateReply(ctx context.Context, history []domainConversation.Turn, newText string, meta domainConversation.SenderMetadata) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  claudeMessages(history, newText),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(p.systemPrompt, meta)}},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	logrus.WithFields(logrus.Fields{
		"sender_id":     meta.SenderID,
		"model":         p.model,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}).Debug("[CLAUDE] Reply generated")

	return strings.TrimSpace(sb.String()), nil
}

// claudeMessages keeps roles alternating and starting with the user, as the
// Messages API requires. Consecutive turns of the same role are joined.
func claudeMessages(history []domainConversation.Turn, newText string) []anthropic.MessageParam {
	type turn struct {
		assistant bool
		text      string
	}
	var merged []turn
	add := func(assistant bool, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if n := len(merged); n > 0 && merged[n-1].assistant == assistant {
			merged[n-1].text += "\n" + text
			return
		}
		merged = append(merged, turn{assistant: assistant, text: text})
	}
	for _, t := range history {
		add(t.Role == "assistant", t.Text)
	}
	add(false, newText)

	for len(merged) > 0 && merged[0].assistant {
		merged = merged[1:]
	}

	messages := make([]anthropic.MessageParam, 0, len(merged))
	for _, t := range merged {
		if t.assistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.text)))
		}
	}
	return messages
}
