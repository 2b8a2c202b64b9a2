package providers

import (
	"context"
	"fmt"
	"strings"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

// OpenAIResponder generates replies with the OpenAI chat completions API.
type OpenAIResponder struct {
	client       openai.Client
	model        string
	systemPrompt string
}

func NewOpenAIResponder(opts Options) *OpenAIResponder {
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIResponder{
		client:       openai.NewClient(option.WithAPIKey(opts.APIKey)),
		model:        model,
		systemPrompt: opts.SystemPrompt,
	}
}

func (p *OpenAIResponder) GenerateReply(ctx context.Context, history []domainConversation.Turn, newText string, meta domainConversation.SenderMetadata) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: openAIMessages(systemPrompt(p.systemPrompt, meta), history, newText),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	logrus.WithFields(logrus.Fields{
		"sender_id":     meta.SenderID,
		"model":         p.model,
		"input_tokens":  completion.Usage.PromptTokens,
		"output_tokens": completion.Usage.CompletionTokens,
	}).Debug("[OPENAI] Reply generated")

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func openAIMessages(system string, history []domainConversation.Turn, newText string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, t := range history {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if t.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(t.Text))
		} else {
			messages = append(messages, openai.UserMessage(t.Text))
		}
	}
	return append(messages, openai.UserMessage(newText))
}
