package providers

import (
	"context"
	"testing"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponder_SelectsProvider(t *testing.T) {
	r, err := NewResponder(Options{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	g, ok := r.(*GeminiResponder)
	require.True(t, ok)
	assert.Equal(t, DefaultGeminiModel, g.model)
	assert.Equal(t, defaultSystemPrompt, g.systemPrompt)

	r, err = NewResponder(Options{Provider: "OpenAI", APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	o, ok := r.(*OpenAIResponder)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", o.model)

	r, err = NewResponder(Options{Provider: "claude", APIKey: "k"})
	require.NoError(t, err)
	c, ok := r.(*ClaudeResponder)
	require.True(t, ok)
	assert.EqualValues(t, defaultClaudeMaxTokens, c.maxTokens)
}

func TestNewResponder_Errors(t *testing.T) {
	_, err := NewResponder(Options{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewResponder(Options{Provider: "llama", APIKey: "k"})
	assert.Error(t, err)
}

func TestSystemPrompt_AddsPushName(t *testing.T) {
	assert.Equal(t, "base", systemPrompt("base", domainConversation.SenderMetadata{}))
	assert.Contains(t, systemPrompt("base", domainConversation.SenderMetadata{PushName: "Maria"}), "Customer name: Maria")
}

func TestGeminiContents(t *testing.T) {
	history := []domainConversation.Turn{
		{Role: "user", Text: "hola"},
		{Role: "assistant", Text: "¿en qué te ayudo?"},
		{Role: "user", Text: " "},
	}
	contents := geminiContents(history, "precio")
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "precio", contents[2].Parts[0].Text)
}

func TestOpenAIMessages(t *testing.T) {
	history := []domainConversation.Turn{
		{Role: "user", Text: "hola"},
		{Role: "assistant", Text: "buenas"},
	}
	msgs := openAIMessages("sys", history, "precio")
	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
	assert.NotNil(t, msgs[3].OfUser)

	assert.Len(t, openAIMessages("", nil, "x"), 1)
}

func TestClaudeMessages_AlternateAndStartWithUser(t *testing.T) {
	history := []domainConversation.Turn{
		{Role: "assistant", Text: "bienvenido"},
		{Role: "user", Text: "hola"},
		{Role: "user", Text: "precio?"},
		{Role: "assistant", Text: "10 USD"},
	}
	msgs := claudeMessages(history, "ok")
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "hola\nprecio?", msgs[0].Content[0].OfText.Text)
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))

	msgs = claudeMessages([]domainConversation.Turn{{Role: "user", Text: "a"}}, "b")
	require.Len(t, msgs, 1)
	assert.Equal(t, "a\nb", msgs[0].Content[0].OfText.Text)
}

func TestGeminiResponder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewGeminiResponder(Options{APIKey: "fake-key", SystemPrompt: "sys"})
	_, err := r.GenerateReply(ctx, nil, "hola", domainConversation.SenderMetadata{SenderID: "5511999999999"})
	assert.Error(t, err)
}
