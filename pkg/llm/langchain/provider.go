package langchain

import (
	"context"
	"fmt"
	"strings"

	"cluster-intelligence-be/pkg/llm"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Provider adapts any langchaingo llms.Model to llm.LLMProvider.
type Provider struct {
	model       llms.Model
	temperature float64
}

var _ llm.LLMProvider = (*Provider)(nil)

func New(model llms.Model) *Provider {
	return &Provider{model: model, temperature: 0.2}
}

// NewOllama builds a Provider backed by langchaingo's Ollama client.
func NewOllama(serverURL, modelName string) (*Provider, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	m, err := ollama.New(ollama.WithModel(modelName), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize langchain ollama model: %w", err)
	}
	return New(m), nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case llm.RoleSystem:
		return llms.ChatMessageTypeSystem
	case llm.RoleAssistant, "model":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	cfg := llm.ApplyOptions(llm.Options{Temperature: p.temperature}, opts...)

	content := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Model != "" {
		callOpts = append(callOpts, llms.WithModel(cfg.Model))
	}

	resp, err := p.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", llm.ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}
