package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// GeminiResponder generates replies with the Google Gemini API.
type GeminiResponder struct {
	apiKey       string
	model        string
	systemPrompt string
}

func NewGeminiResponder(opts Options) *GeminiResponder {
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiResponder{apiKey: opts.APIKey, model: model, systemPrompt: opts.SystemPrompt}
}

func (p *GeminiResponder) GenerateReply(ctx context.Context, history []domainConversation.Turn, newText string, meta domainConversation.SenderMetadata) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(p.systemPrompt, meta), ""),
	}

	result, err := generateContentWithRetry(ctx, client, p.model, geminiContents(history, newText), cfg)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(result.Text())
	if usage := result.UsageMetadata; usage != nil {
		logrus.WithFields(logrus.Fields{
			"sender_id":     meta.SenderID,
			"model":         p.model,
			"input_tokens":  usage.PromptTokenCount,
			"output_tokens": usage.CandidatesTokenCount,
		}).Debug("[GEMINI] Reply generated")
	}
	return reply, nil
}

// geminiContents maps the conversation to Gemini turns; assistant becomes model.
func geminiContents(history []domainConversation.Turn, newText string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := genai.RoleUser
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: newText}},
	})
	return contents
}

func generateContentWithRetry(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	for i := 0; i < 3; i++ {
		result, err := client.Models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			return result, nil
		}
		if !strings.Contains(err.Error(), "503") {
			return nil, err
		}
		select {
		case <-time.After(time.Duration(1<<uint(i)) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("max retries exceeded")
}
